package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Details 按业务类型区分的交易详情
//
// 每种业务只携带自己需要的字段，比如电费只有电表号，
// 不可能出现带 meterNumber 的 tv 交易。JSON 仍是扁平的 {provider, ...} 对象
type Details interface {
	Service() ServiceType
	ProviderName() string
	Validate() error
}

var ErrProviderRequired = errors.New("provider is required")

type AirtimeDetails struct {
	Provider    string `json:"provider"`
	PhoneNumber string `json:"phoneNumber"`
}

type DataDetails struct {
	Provider    string `json:"provider"`
	PhoneNumber string `json:"phoneNumber"`
	Package     string `json:"package,omitempty"`
}

type ElectricityDetails struct {
	Provider    string `json:"provider"`
	MeterNumber string `json:"meterNumber"`
}

type TVDetails struct {
	Provider      string `json:"provider"`
	AccountNumber string `json:"accountNumber"`
	Package       string `json:"package,omitempty"`
}

type InternetDetails struct {
	Provider      string `json:"provider"`
	AccountNumber string `json:"accountNumber"`
}

type WaterDetails struct {
	Provider      string `json:"provider"`
	AccountNumber string `json:"accountNumber"`
}

func (AirtimeDetails) Service() ServiceType     { return ServiceAirtime }
func (DataDetails) Service() ServiceType        { return ServiceData }
func (ElectricityDetails) Service() ServiceType { return ServiceElectricity }
func (TVDetails) Service() ServiceType          { return ServiceTV }
func (InternetDetails) Service() ServiceType    { return ServiceInternet }
func (WaterDetails) Service() ServiceType       { return ServiceWater }

func (d AirtimeDetails) ProviderName() string     { return d.Provider }
func (d DataDetails) ProviderName() string        { return d.Provider }
func (d ElectricityDetails) ProviderName() string { return d.Provider }
func (d TVDetails) ProviderName() string          { return d.Provider }
func (d InternetDetails) ProviderName() string    { return d.Provider }
func (d WaterDetails) ProviderName() string       { return d.Provider }

func (d AirtimeDetails) Validate() error {
	return requireFields(d.Provider, "phoneNumber", d.PhoneNumber)
}

func (d DataDetails) Validate() error {
	return requireFields(d.Provider, "phoneNumber", d.PhoneNumber)
}

func (d ElectricityDetails) Validate() error {
	return requireFields(d.Provider, "meterNumber", d.MeterNumber)
}

func (d TVDetails) Validate() error {
	return requireFields(d.Provider, "accountNumber", d.AccountNumber)
}

func (d InternetDetails) Validate() error {
	return requireFields(d.Provider, "accountNumber", d.AccountNumber)
}

func (d WaterDetails) Validate() error {
	return requireFields(d.Provider, "accountNumber", d.AccountNumber)
}

func requireFields(provider, name, value string) error {
	if provider == "" {
		return ErrProviderRequired
	}
	if value == "" {
		return fmt.Errorf("%s is required", name)
	}
	return nil
}

// DetailsInput 表单提交的全部可选字段，由 NewDetails 按业务类型取舍
type DetailsInput struct {
	Provider      string
	PhoneNumber   string
	MeterNumber   string
	AccountNumber string
	Package       string
}

// NewDetails 按业务类型挑选适用的字段
//
// 不属于该业务的字段会被忽略，与前端表单只展示对应输入框的行为一致
func NewDetails(service ServiceType, in DetailsInput) (Details, error) {
	var d Details
	switch service {
	case ServiceAirtime:
		d = AirtimeDetails{Provider: in.Provider, PhoneNumber: in.PhoneNumber}
	case ServiceData:
		d = DataDetails{Provider: in.Provider, PhoneNumber: in.PhoneNumber, Package: in.Package}
	case ServiceElectricity:
		d = ElectricityDetails{Provider: in.Provider, MeterNumber: in.MeterNumber}
	case ServiceTV:
		d = TVDetails{Provider: in.Provider, AccountNumber: in.AccountNumber, Package: in.Package}
	case ServiceInternet:
		d = InternetDetails{Provider: in.Provider, AccountNumber: in.AccountNumber}
	case ServiceWater:
		d = WaterDetails{Provider: in.Provider, AccountNumber: in.AccountNumber}
	default:
		return nil, fmt.Errorf("unknown service %q", service)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// DecodeDetails 按 service 严格解析 details，出现不属于该业务的字段直接报错
func DecodeDetails(service ServiceType, raw []byte) (Details, error) {
	switch service {
	case ServiceAirtime:
		var d AirtimeDetails
		if err := strictDecode(raw, &d); err != nil {
			return nil, err
		}
		return d, nil
	case ServiceData:
		var d DataDetails
		if err := strictDecode(raw, &d); err != nil {
			return nil, err
		}
		return d, nil
	case ServiceElectricity:
		var d ElectricityDetails
		if err := strictDecode(raw, &d); err != nil {
			return nil, err
		}
		return d, nil
	case ServiceTV:
		var d TVDetails
		if err := strictDecode(raw, &d); err != nil {
			return nil, err
		}
		return d, nil
	case ServiceInternet:
		var d InternetDetails
		if err := strictDecode(raw, &d); err != nil {
			return nil, err
		}
		return d, nil
	case ServiceWater:
		var d WaterDetails
		if err := strictDecode(raw, &d); err != nil {
			return nil, err
		}
		return d, nil
	}
	return nil, fmt.Errorf("unknown service %q", service)
}

func strictDecode(raw []byte, dest interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return fmt.Errorf("invalid details: %w", err)
	}
	return nil
}

package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type NetworkType string

const (
	LSTM NetworkType = "lstm"
)

var knownNetworkTypes = []NetworkType{LSTM}

func ParseNetworkType(s string) (NetworkType, error) {
	t := NetworkType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown network type %q", s)
	}
	return t, nil
}

// UnmarshalYAML normalizes the type the same way the flags and environment do.
func (t *NetworkType) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseNetworkType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t NetworkType) Valid() bool {
	for _, known := range knownNetworkTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Params is the hyperparameter record of the LSTM-LSTM VAE trained on the
// patent corpus. It is passed by value; nothing mutates it after loading.
type Params struct {
	EncType       NetworkType `yaml:"enc_type" json:"enc_type"`
	DecType       NetworkType `yaml:"dec_type" json:"dec_type"`
	NZ            int         `yaml:"nz" json:"nz"`
	NI            int         `yaml:"ni" json:"ni"`
	EncNH         int         `yaml:"enc_nh" json:"enc_nh"`
	DecNH         int         `yaml:"dec_nh" json:"dec_nh"`
	DecDropoutIn  float64     `yaml:"dec_dropout_in" json:"dec_dropout_in"`
	DecDropoutOut float64     `yaml:"dec_dropout_out" json:"dec_dropout_out"`
	BatchSize     int         `yaml:"batch_size" json:"batch_size"`
	Epochs        int         `yaml:"epochs" json:"epochs"`
	TestNEpoch    int         `yaml:"test_nepoch" json:"test_nepoch"`
	TrainData     string      `yaml:"train_data" json:"train_data"`
	ValData       string      `yaml:"val_data" json:"val_data"`
	TestData      string      `yaml:"test_data" json:"test_data"`
}

func PatentDefaults() Params {
	return Params{
		EncType:       LSTM,
		DecType:       LSTM,
		NZ:            32,
		NI:            512,
		EncNH:         1024,
		DecNH:         1024,
		DecDropoutIn:  0.5,
		DecDropoutOut: 0.5,
		BatchSize:     32,
		Epochs:        100,
		TestNEpoch:    5,
		TrainData:     "../../Data/train.txt",
		ValData:       "../../Data/val.txt",
		TestData:      "../../Data/test.txt",
	}
}

type DataFile struct {
	Role string
	Path string
}

// DataFiles returns the dataset locations in train, val, test order.
func (p Params) DataFiles() []DataFile {
	return []DataFile{
		{Role: "train", Path: p.TrainData},
		{Role: "val", Path: p.ValData},
		{Role: "test", Path: p.TestData},
	}
}

type Field struct {
	Key   string
	Value string
}

func (p Params) Fields() []Field {
	return []Field{
		{"enc_type", string(p.EncType)},
		{"dec_type", string(p.DecType)},
		{"nz", strconv.Itoa(p.NZ)},
		{"ni", strconv.Itoa(p.NI)},
		{"enc_nh", strconv.Itoa(p.EncNH)},
		{"dec_nh", strconv.Itoa(p.DecNH)},
		{"dec_dropout_in", formatFloat(p.DecDropoutIn)},
		{"dec_dropout_out", formatFloat(p.DecDropoutOut)},
		{"batch_size", strconv.Itoa(p.BatchSize)},
		{"epochs", strconv.Itoa(p.Epochs)},
		{"test_nepoch", strconv.Itoa(p.TestNEpoch)},
		{"train_data", p.TrainData},
		{"val_data", p.ValData},
		{"test_data", p.TestData},
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Fingerprint is the hex sha256 of the record's JSON encoding. Equal
// records always share a fingerprint.
func (p Params) Fingerprint() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode params: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// FieldError describes one invalid key of the record.
type FieldError struct {
	Key    string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s %s", e.Key, e.Reason)
}

// ValidationError carries every problem found by Validate.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Error())
	}
	return "invalid params: " + strings.Join(parts, "; ")
}

// Has reports whether key failed validation.
func (e *ValidationError) Has(key string) bool {
	for _, f := range e.Fields {
		if f.Key == key {
			return true
		}
	}
	return false
}

func (p Params) Validate() error {
	var errs []FieldError

	if !p.EncType.Valid() {
		errs = append(errs, FieldError{"enc_type", fmt.Sprintf("must be one of %v (got %q)", knownNetworkTypes, p.EncType)})
	}
	if !p.DecType.Valid() {
		errs = append(errs, FieldError{"dec_type", fmt.Sprintf("must be one of %v (got %q)", knownNetworkTypes, p.DecType)})
	}

	positive := []struct {
		key   string
		value int
	}{
		{"nz", p.NZ},
		{"ni", p.NI},
		{"enc_nh", p.EncNH},
		{"dec_nh", p.DecNH},
		{"batch_size", p.BatchSize},
		{"epochs", p.Epochs},
		{"test_nepoch", p.TestNEpoch},
	}
	for _, f := range positive {
		if f.value <= 0 {
			errs = append(errs, FieldError{f.key, fmt.Sprintf("must be > 0 (got %d)", f.value)})
		}
	}

	for _, f := range []struct {
		key   string
		value float64
	}{
		{"dec_dropout_in", p.DecDropoutIn},
		{"dec_dropout_out", p.DecDropoutOut},
	} {
		// NaN fails both comparisons, so test the accepted range.
		if !(f.value >= 0 && f.value <= 1) {
			errs = append(errs, FieldError{f.key, fmt.Sprintf("must be within [0,1] (got %v)", f.value)})
		}
	}

	if p.TestNEpoch > 0 && p.Epochs > 0 && p.TestNEpoch > p.Epochs {
		errs = append(errs, FieldError{"test_nepoch", fmt.Sprintf("must not exceed epochs (%d > %d)", p.TestNEpoch, p.Epochs)})
	}

	for _, f := range p.DataFiles() {
		if strings.TrimSpace(f.Path) == "" {
			errs = append(errs, FieldError{f.Role + "_data", "must not be empty"})
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

// Overrides holds CLI or environment supplied values. Zero values are ignored.
type Overrides struct {
	EncType       NetworkType
	DecType       NetworkType
	NZ            int
	NI            int
	EncNH         int
	DecNH         int
	DecDropoutIn  *float64
	DecDropoutOut *float64
	BatchSize     int
	Epochs        int
	TestNEpoch    int
	TrainData     string
	ValData       string
	TestData      string
}

// ApplyOverrides returns a copy of p with every non-zero override applied.
func (p Params) ApplyOverrides(o Overrides) Params {
	if o.EncType != "" {
		p.EncType = o.EncType
	}
	if o.DecType != "" {
		p.DecType = o.DecType
	}
	if o.NZ > 0 {
		p.NZ = o.NZ
	}
	if o.NI > 0 {
		p.NI = o.NI
	}
	if o.EncNH > 0 {
		p.EncNH = o.EncNH
	}
	if o.DecNH > 0 {
		p.DecNH = o.DecNH
	}
	if o.DecDropoutIn != nil {
		p.DecDropoutIn = *o.DecDropoutIn
	}
	if o.DecDropoutOut != nil {
		p.DecDropoutOut = *o.DecDropoutOut
	}
	if o.BatchSize > 0 {
		p.BatchSize = o.BatchSize
	}
	if o.Epochs > 0 {
		p.Epochs = o.Epochs
	}
	if o.TestNEpoch > 0 {
		p.TestNEpoch = o.TestNEpoch
	}
	if o.TrainData != "" {
		p.TrainData = o.TrainData
	}
	if o.ValData != "" {
		p.ValData = o.ValData
	}
	if o.TestData != "" {
		p.TestData = o.TestData
	}
	return p
}

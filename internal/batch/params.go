package batch

import (
	"crypto/sha256"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ParameterType is the scalar type of a job parameter
type ParameterType string

// Parameter type constants
const (
	TypeString ParameterType = "STRING"
	TypeLong   ParameterType = "LONG"
	TypeDouble ParameterType = "DOUBLE"
	TypeDate   ParameterType = "DATE"
	TypeBool   ParameterType = "BOOLEAN"
)

// Parameter is a single typed scalar value.
// Value holds a string, int64, float64, time.Time or bool matching Type.
type Parameter struct {
	Type  ParameterType
	Value any
}

// String renders the value in its canonical textual form
func (p Parameter) String() string {
	switch v := p.Value.(type) {
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

// Equal compares type and value; dates compare by instant
func (p Parameter) Equal(other Parameter) bool {
	if p.Type != other.Type {
		return false
	}
	if a, ok := p.Value.(time.Time); ok {
		b, ok := other.Value.(time.Time)
		return ok && a.Equal(b)
	}
	return p.Value == other.Value
}

// JobParameters is an ordered mapping of keys to typed scalar values.
// Insertion order is kept for display only; equality and identity ignore it.
type JobParameters struct {
	keys   []string
	values map[string]Parameter
}

// NewParameters returns an empty parameter set
func NewParameters() *JobParameters {
	return &JobParameters{values: make(map[string]Parameter)}
}

func (p *JobParameters) add(key string, param Parameter) *JobParameters {
	if p.values == nil {
		p.values = make(map[string]Parameter)
	}
	if _, exists := p.values[key]; !exists {
		p.keys = append(p.keys, key)
	}
	p.values[key] = param
	return p
}

// AddString adds or replaces a string parameter
func (p *JobParameters) AddString(key, value string) *JobParameters {
	return p.add(key, Parameter{Type: TypeString, Value: value})
}

// AddLong adds or replaces an integer parameter
func (p *JobParameters) AddLong(key string, value int64) *JobParameters {
	return p.add(key, Parameter{Type: TypeLong, Value: value})
}

// AddDouble adds or replaces a floating point parameter
func (p *JobParameters) AddDouble(key string, value float64) *JobParameters {
	return p.add(key, Parameter{Type: TypeDouble, Value: value})
}

// AddDate adds or replaces a date parameter, normalised to UTC
func (p *JobParameters) AddDate(key string, value time.Time) *JobParameters {
	return p.add(key, Parameter{Type: TypeDate, Value: value.UTC()})
}

// AddBool adds or replaces a boolean parameter
func (p *JobParameters) AddBool(key string, value bool) *JobParameters {
	return p.add(key, Parameter{Type: TypeBool, Value: value})
}

// Build returns a copy of the parameter set. Later additions to the builder
// do not affect it.
func (p *JobParameters) Build() JobParameters {
	out := JobParameters{
		keys:   make([]string, len(p.keys)),
		values: make(map[string]Parameter, len(p.values)),
	}
	copy(out.keys, p.keys)
	for k, v := range p.values {
		out.values[k] = v
	}
	return out
}

// Len returns the number of parameters
func (p JobParameters) Len() int {
	return len(p.keys)
}

// IsEmpty reports whether the set has no parameters
func (p JobParameters) IsEmpty() bool {
	return len(p.keys) == 0
}

// Keys returns the keys in insertion order
func (p JobParameters) Keys() []string {
	keys := make([]string, len(p.keys))
	copy(keys, p.keys)
	return keys
}

// Get returns the parameter stored under key
func (p JobParameters) Get(key string) (Parameter, bool) {
	param, ok := p.values[key]
	return param, ok
}

// GetString returns the textual value stored under key
func (p JobParameters) GetString(key string) (string, bool) {
	param, ok := p.values[key]
	if !ok {
		return "", false
	}
	return param.String(), true
}

// Equal reports whether both sets hold the same key/value pairs regardless of order
func (p JobParameters) Equal(other JobParameters) bool {
	if len(p.values) != len(other.values) {
		return false
	}
	for k, v := range p.values {
		o, ok := other.values[k]
		if !ok || !v.Equal(o) {
			return false
		}
	}
	return true
}

// canonical is the sorted (key, type, value) encoding used for identity
func (p JobParameters) canonical() string {
	keys := p.Keys()
	sort.Strings(keys)

	entries := make([][3]string, len(keys))
	for i, k := range keys {
		v := p.values[k]
		entries[i] = [3]string{k, string(v.Type), v.String()}
	}
	b, _ := json.Marshal(entries)
	return string(b)
}

// Key returns the identity hash of the parameter set.
// Two sets share a key iff they are Equal.
func (p JobParameters) Key() string {
	sum := sha256.Sum256([]byte(p.canonical()))
	return hex.EncodeToString(sum[:])
}

// String renders the parameters as "k=v,k2=v2" in insertion order
func (p JobParameters) String() string {
	parts := make([]string, len(p.keys))
	for i, k := range p.keys {
		parts[i] = k + "=" + p.values[k].String()
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// Args renders the parameters in the textual form accepted by ParseParameters
func (p JobParameters) Args() []string {
	args := make([]string, len(p.keys))
	for i, k := range p.keys {
		v := p.values[k]
		args[i] = fmt.Sprintf("%s(%s)=%s", k, strings.ToLower(string(v.Type)), v.String())
	}
	return args
}

type jsonParameter struct {
	Key   string          `json:"key"`
	Type  ParameterType   `json:"type"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON encodes the parameters as an ordered list
func (p JobParameters) MarshalJSON() ([]byte, error) {
	out := make([]jsonParameter, 0, len(p.keys))
	for _, k := range p.keys {
		v := p.values[k]
		var raw []byte
		var err error
		if v.Type == TypeDate {
			raw, err = json.Marshal(v.String())
		} else {
			raw, err = json.Marshal(v.Value)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to marshal parameter %q: %w", k, err)
		}
		out = append(out, jsonParameter{Key: k, Type: v.Type, Value: raw})
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the ordered list produced by MarshalJSON
func (p *JobParameters) UnmarshalJSON(data []byte) error {
	var in []jsonParameter
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("failed to unmarshal job parameters: %w", err)
	}

	*p = JobParameters{values: make(map[string]Parameter, len(in))}
	for _, jp := range in {
		var err error
		switch jp.Type {
		case TypeString:
			var s string
			err = json.Unmarshal(jp.Value, &s)
			p.AddString(jp.Key, s)
		case TypeLong:
			var n int64
			err = json.Unmarshal(jp.Value, &n)
			p.AddLong(jp.Key, n)
		case TypeDouble:
			var f float64
			err = json.Unmarshal(jp.Value, &f)
			p.AddDouble(jp.Key, f)
		case TypeBool:
			var b bool
			err = json.Unmarshal(jp.Value, &b)
			p.AddBool(jp.Key, b)
		case TypeDate:
			var s string
			if err = json.Unmarshal(jp.Value, &s); err == nil {
				var t time.Time
				t, err = time.Parse(time.RFC3339Nano, s)
				p.AddDate(jp.Key, t)
			}
		default:
			err = fmt.Errorf("unsupported type %q", jp.Type)
		}
		if err != nil {
			return fmt.Errorf("failed to unmarshal parameter %q: %w", jp.Key, err)
		}
	}
	return nil
}

// Value implements driver.Valuer so parameters can be stored as JSONB
func (p JobParameters) Value() (driver.Value, error) {
	return p.MarshalJSON()
}

// Scan implements sql.Scanner
func (p *JobParameters) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return p.UnmarshalJSON(v)
	case string:
		return p.UnmarshalJSON([]byte(v))
	case nil:
		*p = JobParameters{}
		return nil
	default:
		return fmt.Errorf("unsupported scan type for JobParameters: %T", src)
	}
}

// ParseParameters parses "name=value" and "name(type)=value" arguments.
// The type defaults to string; dates accept RFC 3339 or YYYY-MM-DD.
func ParseParameters(args []string) (JobParameters, error) {
	params := NewParameters()
	for _, arg := range args {
		name, raw, ok := strings.Cut(arg, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return JobParameters{}, fmt.Errorf("%w: expected name=value, got %q", ErrInvalidParameters, arg)
		}

		typ := "string"
		if open := strings.Index(name, "("); open >= 0 {
			if !strings.HasSuffix(name, ")") {
				return JobParameters{}, fmt.Errorf("%w: malformed type in %q", ErrInvalidParameters, arg)
			}
			typ = strings.ToLower(name[open+1 : len(name)-1])
			name = name[:open]
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return JobParameters{}, fmt.Errorf("%w: empty parameter name in %q", ErrInvalidParameters, arg)
		}

		if err := addParsed(params, name, typ, raw); err != nil {
			return JobParameters{}, fmt.Errorf("%w: parameter %q: %v", ErrInvalidParameters, name, err)
		}
	}
	return params.Build(), nil
}

func addParsed(params *JobParameters, name, typ, raw string) error {
	switch typ {
	case "string":
		params.AddString(name, raw)
	case "long", "int":
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		params.AddLong(name, n)
	case "double", "float":
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		params.AddDouble(name, f)
	case "bool", "boolean":
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		params.AddBool(name, b)
	case "date":
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			t, err = time.Parse(time.DateOnly, raw)
			if err != nil {
				return err
			}
		}
		params.AddDate(name, t)
	default:
		return fmt.Errorf("unknown type %q", typ)
	}
	return nil
}

// ParametersFromMap converts decoded JSON values into parameters.
// Whole numbers become LONG, other numbers DOUBLE. Keys are added in sorted order.
func ParametersFromMap(m map[string]any) (JobParameters, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	params := NewParameters()
	for _, k := range keys {
		if k == "" {
			return JobParameters{}, fmt.Errorf("%w: empty parameter name", ErrInvalidParameters)
		}
		switch v := m[k].(type) {
		case string:
			params.AddString(k, v)
		case bool:
			params.AddBool(k, v)
		case float64:
			if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
				params.AddLong(k, int64(v))
			} else {
				params.AddDouble(k, v)
			}
		case int:
			params.AddLong(k, int64(v))
		case int64:
			params.AddLong(k, v)
		case json.Number:
			if n, err := v.Int64(); err == nil {
				params.AddLong(k, n)
			} else if f, err := v.Float64(); err == nil {
				params.AddDouble(k, f)
			} else {
				return JobParameters{}, fmt.Errorf("%w: parameter %q: %v", ErrInvalidParameters, k, err)
			}
		case time.Time:
			params.AddDate(k, v)
		default:
			return JobParameters{}, fmt.Errorf("%w: parameter %q has unsupported type %T", ErrInvalidParameters, k, v)
		}
	}
	return params.Build(), nil
}

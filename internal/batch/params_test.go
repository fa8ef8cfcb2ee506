package batch

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobParameters_EqualIgnoresOrder(t *testing.T) {
	a := NewParameters().AddString("time", "2024-01-01T10:00:00").AddLong("run.id", 7).Build()
	b := NewParameters().AddLong("run.id", 7).AddString("time", "2024-01-01T10:00:00").Build()

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Key(), b.Key())
	assert.Equal(t, []string{"time", "run.id"}, a.Keys())
	assert.Equal(t, []string{"run.id", "time"}, b.Keys())
}

func TestJobParameters_NotEqual(t *testing.T) {
	base := NewParameters().AddString("time", "t1").Build()

	tests := []struct {
		name  string
		other JobParameters
	}{
		{name: "different value", other: NewParameters().AddString("time", "t2").Build()},
		{name: "different type", other: NewParameters().AddLong("time", 1).Build()},
		{name: "extra key", other: NewParameters().AddString("time", "t1").AddBool("x", true).Build()},
		{name: "empty", other: JobParameters{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, base.Equal(tt.other))
			assert.NotEqual(t, base.Key(), tt.other.Key())
		})
	}
}

func TestJobParameters_TypeIsPartOfIdentity(t *testing.T) {
	str := NewParameters().AddString("n", "1").Build()
	long := NewParameters().AddLong("n", 1).Build()

	assert.False(t, str.Equal(long))
	assert.NotEqual(t, str.Key(), long.Key())
}

func TestJobParameters_AddReplacesKeepingPosition(t *testing.T) {
	p := NewParameters().AddString("a", "1").AddString("b", "2").AddString("a", "3").Build()

	assert.Equal(t, []string{"a", "b"}, p.Keys())
	v, ok := p.GetString("a")
	require.True(t, ok)
	assert.Equal(t, "3", v)
}

func TestJobParameters_BuildIsDetachedFromBuilder(t *testing.T) {
	builder := NewParameters().AddString("a", "1")
	built := builder.Build()
	builder.AddString("b", "2").AddString("a", "changed")

	only := NewParameters().AddString("a", "1").Build()
	assert.Equal(t, 1, built.Len())
	assert.Equal(t, []string{"a"}, built.Keys())
	assert.True(t, built.Equal(only))
	assert.Equal(t, only.Key(), built.Key())

	_, ok := built.Get("b")
	assert.False(t, ok)
	v, _ := built.GetString("a")
	assert.Equal(t, "1", v)
}

func TestJobParameters_DatesCompareByInstant(t *testing.T) {
	utc := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	local := utc.In(time.FixedZone("KST", 9*3600))

	a := NewParameters().AddDate("day", utc).Build()
	b := NewParameters().AddDate("day", local).Build()

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Key(), b.Key())
}

func TestJobParameters_JSONRoundTripKeepsOrderAndTypes(t *testing.T) {
	day := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p := NewParameters().
		AddString("time", "now").
		AddLong("count", 42).
		AddDouble("ratio", 0.5).
		AddBool("dry", true).
		AddDate("day", day).
		Build()

	data, err := json.Marshal(p)
	require.NoError(t, err)

	var decoded JobParameters
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, p.Keys(), decoded.Keys())
	assert.True(t, p.Equal(decoded))

	count, ok := decoded.Get("count")
	require.True(t, ok)
	assert.Equal(t, TypeLong, count.Type)
	assert.Equal(t, int64(42), count.Value)
}

func TestJobParameters_Scan(t *testing.T) {
	p := NewParameters().AddString("time", "now").Build()
	raw, err := p.Value()
	require.NoError(t, err)

	var scanned JobParameters
	require.NoError(t, scanned.Scan(raw))
	assert.True(t, p.Equal(scanned))

	require.NoError(t, scanned.Scan(string(raw.([]byte))))
	assert.True(t, p.Equal(scanned))

	assert.Error(t, scanned.Scan(42))
}

func TestParseParameters(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
		check   func(t *testing.T, p JobParameters)
	}{
		{
			name: "default string type",
			args: []string{"time=2024-01-01T10:00:00"},
			check: func(t *testing.T, p JobParameters) {
				v, ok := p.Get("time")
				require.True(t, ok)
				assert.Equal(t, TypeString, v.Type)
				assert.Equal(t, "2024-01-01T10:00:00", v.Value)
			},
		},
		{
			name: "typed values",
			args: []string{"id(long)=12", "ratio(double)=1.5", "dry(boolean)=true", "day(date)=2024-03-01"},
			check: func(t *testing.T, p JobParameters) {
				assert.Equal(t, 4, p.Len())
				id, _ := p.Get("id")
				assert.Equal(t, int64(12), id.Value)
				ratio, _ := p.Get("ratio")
				assert.Equal(t, 1.5, ratio.Value)
				dry, _ := p.Get("dry")
				assert.Equal(t, true, dry.Value)
				day, _ := p.Get("day")
				assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), day.Value)
			},
		},
		{
			name: "value may contain equals sign",
			args: []string{"filter=a=b"},
			check: func(t *testing.T, p JobParameters) {
				v, _ := p.GetString("filter")
				assert.Equal(t, "a=b", v)
			},
		},
		{name: "missing equals", args: []string{"time"}, wantErr: true},
		{name: "empty name", args: []string{"=x"}, wantErr: true},
		{name: "bad long", args: []string{"id(long)=abc"}, wantErr: true},
		{name: "unknown type", args: []string{"id(uuid)=abc"}, wantErr: true},
		{name: "unterminated type", args: []string{"id(long=1"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseParameters(tt.args)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidParameters)
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, p)
			}
		})
	}
}

func TestJobParameters_ArgsRoundTrip(t *testing.T) {
	p := NewParameters().AddString("time", "now").AddLong("id", 3).AddBool("dry", false).Build()

	parsed, err := ParseParameters(p.Args())
	require.NoError(t, err)
	assert.True(t, p.Equal(parsed))
}

func TestParametersFromMap(t *testing.T) {
	p, err := ParametersFromMap(map[string]any{
		"time":  "now",
		"count": float64(3),
		"ratio": 2.5,
		"dry":   true,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"count", "dry", "ratio", "time"}, p.Keys())
	count, _ := p.Get("count")
	assert.Equal(t, TypeLong, count.Type)
	ratio, _ := p.Get("ratio")
	assert.Equal(t, TypeDouble, ratio.Type)

	_, err = ParametersFromMap(map[string]any{"nested": map[string]any{"a": 1}})
	assert.ErrorIs(t, err, ErrInvalidParameters)
}

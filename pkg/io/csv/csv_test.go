package csv

import (
	"bytes"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/flowprep/pkg/table"
)

const flowsCSV = `Flow ID, Protocol, Flow Duration, Flow Byts/s, Src IP, Label
a,6,100,1.5,10.0.0.1,BENIGN
b,17,200,Infinity,10.0.0.2,DDoS
c,6,,3,10.0.0.3,PortScan
`

func read(t *testing.T, data string, opts ...Option) *table.Table {
	t.Helper()
	r := NewStreamReader(io.NopCloser(strings.NewReader(data)), opts...)
	defer r.Close()

	tb, err := r.Read()
	require.NoError(t, err)
	return tb
}

func TestReadDetectsTypes(t *testing.T) {
	tb := read(t, flowsCSV)

	assert.Equal(t, []string{"Flow ID", "Protocol", "Flow Duration", "Flow Byts/s", "Src IP", "Label"}, tb.Names())
	assert.Equal(t, 3, tb.Len())

	tests := []struct {
		name string
		kind table.Kind
	}{
		{name: "Flow ID", kind: table.Text},
		{name: "Protocol", kind: table.Numeric},
		{name: "Flow Duration", kind: table.Numeric},
		{name: "Flow Byts/s", kind: table.Numeric},
		{name: "Src IP", kind: table.Text},
		{name: "Label", kind: table.Text},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := tb.Column(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, c.Kind)
		})
	}

	protocol, err := tb.Column("Protocol")
	require.NoError(t, err)
	assert.Equal(t, []float64{6, 17, 6}, protocol.Num)

	duration, err := tb.Column("Flow Duration")
	require.NoError(t, err)
	assert.True(t, math.IsNaN(duration.Num[2]), "empty cell is missing")

	rate, err := tb.Column("Flow Byts/s")
	require.NoError(t, err)
	assert.True(t, math.IsInf(rate.Num[1], 1))

	label, err := tb.Column("Label")
	require.NoError(t, err)
	assert.Equal(t, []string{"BENIGN", "DDoS", "PortScan"}, label.Str)
}

func TestReadKeepsHeaderSpaces(t *testing.T) {
	tb := read(t, flowsCSV, WithTrimHeaders(false))
	assert.True(t, tb.Has(" Label"))
	assert.False(t, tb.Has("Label"))
}

func TestReadTextColumns(t *testing.T) {
	tb := read(t, flowsCSV, WithTextColumns("Protocol"))
	c, err := tb.Column("Protocol")
	require.NoError(t, err)
	assert.Equal(t, table.Text, c.Kind)
	assert.Equal(t, []string{"6", "17", "6"}, c.Str)
}

func TestReadStrayHeaderRow(t *testing.T) {
	data := "Protocol,Flow Duration,Label\n6,10,BENIGN\nProtocol,Flow Duration,Label\n17,20,DoS\n"
	tb := read(t, data)

	c, err := tb.Column("Flow Duration")
	require.NoError(t, err)
	assert.Equal(t, table.Text, c.Kind, "a repeated header makes the column text")
	assert.Equal(t, []string{"10", "Flow Duration", "20"}, c.Str)
}

func TestReadNaNValues(t *testing.T) {
	data := "Flow Duration,Label\n10,BENIGN\n-,DDoS\n"

	tb := read(t, data)
	c, err := tb.Column("Flow Duration")
	require.NoError(t, err)
	assert.Equal(t, table.Text, c.Kind, "an unknown token keeps the column as text")

	tb = read(t, data, WithNaNValues("", "-"))
	c, err = tb.Column("Flow Duration")
	require.NoError(t, err)
	require.Equal(t, table.Numeric, c.Kind)
	assert.Equal(t, 10.0, c.Num[0])
	assert.True(t, math.IsNaN(c.Num[1]))
}

func TestReadDelimiter(t *testing.T) {
	tb := read(t, "Protocol;Label\n6;BENIGN\n", WithDelimiter(';'))
	assert.Equal(t, []string{"Protocol", "Label"}, tb.Names())
}

func TestReadHeaderOnly(t *testing.T) {
	tb := read(t, "Protocol,Label\n")
	assert.Equal(t, 0, tb.Len())
	assert.Equal(t, []string{"Protocol", "Label"}, tb.Names())
}

func TestReadErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "empty input", data: ""},
		{name: "ragged rows", data: "a,b\n1,2,3\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewStreamReader(io.NopCloser(strings.NewReader(tt.data)))
			_, err := r.Read()
			assert.Error(t, err)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := NewReader(filepath.Join(t.TempDir(), "nope.csv"))
		assert.Error(t, err)
	})
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

func TestWrite(t *testing.T) {
	tb := table.New(2)
	require.NoError(t, tb.AddNumeric("Flow Duration", []float64{-1.25, 1.25}))
	require.NoError(t, tb.AddIndicator("Protocol_6", []float64{1, 0}))
	require.NoError(t, tb.AddText("Note", []string{"a,b", ""}))
	require.NoError(t, tb.AddNumeric("Label", []float64{0, math.NaN()}))

	var buf bytes.Buffer
	w := NewStreamWriter(nopWriteCloser{&buf})
	require.NoError(t, w.Write(tb))
	require.NoError(t, w.Close())

	want := "Flow Duration,Protocol_6,Note,Label\n" +
		"-1.25,1,\"a,b\",0\n" +
		"1.25,0,,NaN\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteBatches(t *testing.T) {
	batch := func(label string) *table.Table {
		tb := table.New(1)
		require.NoError(t, tb.AddNumeric("Protocol", []float64{6}))
		require.NoError(t, tb.AddText("Label", []string{label}))
		return tb
	}

	var buf bytes.Buffer
	w := NewStreamWriter(nopWriteCloser{&buf})
	require.NoError(t, w.Write(batch("BENIGN")))
	require.NoError(t, w.Write(batch("DDoS")))

	other := table.New(1)
	require.NoError(t, other.AddText("Label", []string{"PortScan"}))
	assert.Error(t, w.Write(other))

	assert.Equal(t, "Protocol,Label\n6,BENIGN\n6,DDoS\n", buf.String())
}

func TestWriteEmptyTable(t *testing.T) {
	var buf bytes.Buffer
	w := NewStreamWriter(nopWriteCloser{&buf})
	assert.Error(t, w.Write(table.New(0)))
}

func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flows.csv")

	tb := table.New(2)
	require.NoError(t, tb.AddNumeric("Flow Duration", []float64{0.1, 2}))
	require.NoError(t, tb.AddText("Label", []string{"BENIGN", "DoS"}))

	w, err := NewWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Write(tb))
	require.NoError(t, w.Close())

	_, err = os.Stat(path)
	require.NoError(t, err)

	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	got, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, tb.Names(), got.Names())
	assert.Equal(t, tb.Row(0), got.Row(0))
	assert.Equal(t, tb.Row(1), got.Row(1))
}

package report

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/golang/geo/s2"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/openbuildings-cli/internal/model"
	"github.com/sells-group/openbuildings-cli/internal/nearest"
)

func rioResult(t *testing.T) Result {
	t.Helper()
	recs := []model.Building{
		{Latitude: -22.9510, Longitude: -43.2000, AreaInMeters: 120.5, Confidence: 0.81, PlusCode: "589R2RX2+AA", Row: 1},
		{Latitude: -23.0000, Longitude: -43.2500, AreaInMeters: 88.1, Confidence: 0.70, PlusCode: "589R2R22+BB", Row: 2},
	}
	m, err := nearest.FindNearest(recs, model.CristoRedentor.ReferencePoint)
	require.NoError(t, err)
	return NewResult(model.CristoRedentor, m, DefaultS2Level)
}

func TestNewResult(t *testing.T) {
	r := rioResult(t)

	assert.NotEqual(t, [16]byte{}, [16]byte(r.ID))
	assert.Equal(t, "589R2RX2+AA", r.Building.PlusCode)
	assert.Equal(t, 0, r.Index)
	assert.InDelta(t, 0.006499, r.Distance, 1e-5)
	assert.InDelta(t, 665, r.DistanceMeters, 10)
	assert.False(t, r.CreatedAt.IsZero())

	id := s2.CellIDFromToken(r.S2Token)
	require.True(t, id.IsValid())
	assert.Equal(t, DefaultS2Level, id.Level())
	assert.True(t, s2.CellFromCellID(id).ContainsPoint(s2.PointFromLatLng(s2.LatLngFromDegrees(-22.951, -43.2))))
}

func TestNewResult_UniqueIDs(t *testing.T) {
	assert.NotEqual(t, rioResult(t).ID, rioResult(t).ID)
}

func TestCellToken_ClampsLevel(t *testing.T) {
	assert.Equal(t, 30, s2.CellIDFromToken(CellToken(-22.95, -43.2, 99)).Level())
	assert.Equal(t, 0, s2.CellIDFromToken(CellToken(-22.95, -43.2, -4)).Level())
}

func TestDisplay_Order(t *testing.T) {
	fields := rioResult(t).Display()
	labels := make([]string, len(fields))
	for i, f := range fields {
		labels[i] = f.Label
	}
	assert.Equal(t, []string{
		"Latitude", "Longitude", "Area (m²)", "Confidence", "Full Plus Code", "Distance to Cristo Redentor",
	}, labels)
	assert.Equal(t, "-22.951", fields[0].Value)
	assert.Equal(t, "589R2RX2+AA", fields[4].Value)
}

func TestTextSink(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, TextSink{W: &buf}.Write(context.Background(), rioResult(t)))

	out := buf.String()
	assert.Contains(t, out, "Closest building to Cristo Redentor:")
	assert.Contains(t, out, "Full Plus Code:")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, "RESULT, THE FULL PLUS CODE OF THE BUILDING CLOSEST TO CRISTO REDENTOR: 589R2RX2+AA", lines[len(lines)-1])
}

func TestJSONSink(t *testing.T) {
	r := rioResult(t)
	var buf bytes.Buffer
	require.NoError(t, JSONSink{W: &buf}.Write(context.Background(), r))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, r.ID.String(), got["id"])
	assert.Equal(t, r.S2Token, got["s2_token"])
	building := got["building"].(map[string]any)
	assert.Equal(t, "589R2RX2+AA", building["full_plus_code"])
	landmark := got["landmark"].(map[string]any)
	assert.Equal(t, "Cristo Redentor", landmark["name"])
	assert.InDelta(t, -22.950996196, landmark["latitude"], 1e-9)
}

func TestYAMLSink(t *testing.T) {
	r := rioResult(t)
	var buf bytes.Buffer
	require.NoError(t, YAMLSink{W: &buf}.Write(context.Background(), r))

	var got map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, r.ID.String(), got["id"])
	building := got["building"].(map[string]any)
	assert.Equal(t, "589R2RX2+AA", building["full_plus_code"])
	landmark := got["landmark"].(map[string]any)
	assert.Equal(t, "Cristo Redentor", landmark["name"])
	assert.Contains(t, landmark, "latitude")
}

func TestNewSink(t *testing.T) {
	var buf bytes.Buffer
	for format, want := range map[string]Sink{
		"":     TextSink{W: &buf},
		"text": TextSink{W: &buf},
		"JSON": JSONSink{W: &buf},
		"yaml": YAMLSink{W: &buf},
		"yml":  YAMLSink{W: &buf},
	} {
		got, err := NewSink(format, &buf)
		require.NoError(t, err, format)
		assert.IsType(t, want, got, format)
	}

	_, err := NewSink("xml", &buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")
}

type memSaver struct {
	saved []Result
	err   error
}

func (m *memSaver) SaveResult(_ context.Context, r Result) error {
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, r)
	return nil
}

func TestMultiSink_WithStore(t *testing.T) {
	var buf bytes.Buffer
	saver := &memSaver{}
	sink := MultiSink{TextSink{W: &buf}, StoreSink{Saver: saver}}

	r := rioResult(t)
	require.NoError(t, sink.Write(context.Background(), r))
	require.Len(t, saver.saved, 1)
	assert.Equal(t, r.ID, saver.saved[0].ID)
	assert.Contains(t, buf.String(), "RESULT,")
}

func TestMultiSink_StopsOnError(t *testing.T) {
	failing := &memSaver{err: eris.New("disk full")}
	after := &memSaver{}
	sink := MultiSink{StoreSink{Saver: failing}, StoreSink{Saver: after}}

	err := sink.Write(context.Background(), rioResult(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Empty(t, after.saved)
}

func TestWriteRanking(t *testing.T) {
	r := rioResult(t)
	var buf bytes.Buffer
	require.NoError(t, WriteRanking(&buf, []Result{r, r}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "FULL PLUS CODE")
	assert.True(t, strings.HasPrefix(lines[1], "1 "))
	assert.Contains(t, lines[1], "589R2RX2+AA")
	assert.Contains(t, lines[1], r.S2Token)
	assert.True(t, strings.HasPrefix(lines[2], "2 "))
}

func TestWriteHistory(t *testing.T) {
	r := rioResult(t)
	r.Dataset = "009_buildings.csv.gz"
	var buf bytes.Buffer
	require.NoError(t, WriteHistory(&buf, []Result{r}))

	out := buf.String()
	assert.Contains(t, out, "Cristo Redentor")
	assert.Contains(t, out, "009_buildings.csv.gz")
	assert.Contains(t, out, r.ID.String())
}

package interfaces

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	amr "energy-costing/internal/amr/domain"
	carbon "energy-costing/internal/carbon/domain"
	meter "energy-costing/internal/meter/domain"
	site "energy-costing/internal/site/domain"
	tariff "energy-costing/internal/tariff/domain"
)

type flatSchedule struct {
	rate     float64
	standing float64
}

func (f flatSchedule) Cost(_ time.Time, kwh *amr.HalfHourVector) (tariff.CostBreakdown, error) {
	b := tariff.NewCostBreakdown("flat")
	b.Rates[tariff.BucketFlatRate] = amr.Scale(kwh, f.rate)
	b.Standing["standing_charge"] = f.standing
	return b, nil
}

func sampleResult(t *testing.T) *site.Result {
	t.Helper()
	series := amr.NewSeries("80000000000007")
	for d := 1; d <= 3; d++ {
		require.NoError(t, series.Add(amr.Day(2024, time.March, d), amr.Filled(0.5)))
	}
	gas := meter.New("80000000000007", "boilers", amr.FuelGas, series)
	gas.CostSchedule = flatSchedule{rate: 0.05, standing: 1}
	gas.CarbonSource = carbon.FixedFactor(carbon.GasKgPerKWh)
	gas.ComponentIDs = "g1,g2"
	return &site.Result{Site: site.Site{URN: 7, Name: "Oak Primary"}, Gas: gas}
}

func TestBuildSiteReport(t *testing.T) {
	report, err := BuildSiteReport(sampleResult(t), time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, report.Meters, 1)

	m := report.Meters[0]
	assert.Equal(t, []string{tariff.BucketFlatRate, "standing_charge"}, m.BucketNames)
	require.Len(t, m.Days, 3)
	totals := m.Totals()
	assert.InDelta(t, 72.0, totals.KWh, 1e-9)
	assert.InDelta(t, 72*0.05+3, totals.Total(), 1e-9)
	assert.InDelta(t, 72*carbon.GasKgPerKWh, totals.CarbonKg, 1e-9)
	assert.Zero(t, m.CarbonMissing)
}

func TestBuildSiteXLSX(t *testing.T) {
	report, err := BuildSiteReport(sampleResult(t), time.Now())
	require.NoError(t, err)

	content, err := BuildSiteXLSX(report)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(content))
	require.NoError(t, err)
	defer f.Close()

	mpxn, err := f.GetCellValue("summary", "A7")
	require.NoError(t, err)
	assert.Equal(t, "80000000000007", mpxn)

	rows, err := f.GetRows("gas 80000000000007")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"Day", "Energy (kWh)", "Carbon (kg)", tariff.BucketFlatRate, "standing_charge", "Total (GBP)"}, rows[0])
	assert.Equal(t, "2024-03-01", rows[1][0])
}

func TestBuildSitePDF(t *testing.T) {
	report, err := BuildSiteReport(sampleResult(t), time.Now())
	require.NoError(t, err)

	content, err := BuildSitePDF(report)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(content, []byte("%PDF")))
}

func TestFileExportSinkWritesBothFormats(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileExportSink(filepath.Join(dir, "exports"))
	require.NoError(t, err)

	require.NoError(t, sink.Write(context.Background(), sampleResult(t)))
	for _, name := range []string{"site-7.xlsx", "site-7.pdf"} {
		info, err := os.Stat(filepath.Join(dir, "exports", name))
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}
}

type recordingWriter struct {
	mu      sync.Mutex
	batches []int
	points  int
	fail    bool
}

func (w *recordingWriter) WritePoint(_ context.Context, points ...*write.Point) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail {
		return errors.New("write refused")
	}
	w.batches = append(w.batches, len(points))
	w.points += len(points)
	return nil
}

func TestInfluxSinkBatchesEverySlot(t *testing.T) {
	writer := &recordingWriter{}
	sink, err := NewInfluxSink(writer, 100)
	require.NoError(t, err)

	require.NoError(t, sink.Write(context.Background(), sampleResult(t)))
	assert.Equal(t, 3*amr.SlotsPerDay, writer.points)
	assert.Equal(t, []int{100, 44}, writer.batches)

	failing, err := NewInfluxSink(&recordingWriter{fail: true}, 0)
	require.NoError(t, err)
	assert.Error(t, failing.Write(context.Background(), sampleResult(t)))
}

func TestSlotTime(t *testing.T) {
	assert.Equal(t, time.Date(2024, 3, 1, 23, 30, 0, 0, time.UTC), SlotTime(amr.Day(2024, time.March, 1), 47))
}

package monitor

import (
	"fmt"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"
	"github.com/tutaviendo/storefront/internal/currency"
	"github.com/tutaviendo/storefront/pkg/models"
)

// StatusThreshold maps a minimum value to a status.
type StatusThreshold struct {
	MinValue float64
	Status   HealthStatus
	Text     string
	Color    ui.Color
}

// evaluateStatus returns the first threshold value reaches, in order.
func evaluateStatus(value float64, thresholds []StatusThreshold) (HealthStatus, string, ui.Color) {
	for _, t := range thresholds {
		if value >= t.MinValue {
			return t.Status, t.Text, t.Color
		}
	}
	if len(thresholds) > 0 {
		last := thresholds[len(thresholds)-1]
		return last.Status, last.Text, last.Color
	}
	return HealthCritical, "● UNKNOWN", ui.ColorRed
}

var (
	healthThresholds = []StatusThreshold{
		{SuccessRateExcellent, HealthGood, "● EXCELLENT", ui.ColorGreen},
		{SuccessRateGood, HealthWarning, "● GOOD", ui.ColorYellow},
		{0, HealthCritical, "● CRITICAL", ui.ColorRed},
	}

	throughputThresholds = []StatusThreshold{
		{ThroughputNormal, HealthGood, "● NORMAL", ui.ColorGreen},
		{ThroughputLow, HealthWarning, "● LOW", ui.ColorYellow},
		{0, HealthCritical, "● STOPPED", ui.ColorRed},
	}
)

// GetHealthStatus evaluates the ingestion success rate.
func GetHealthStatus(successRate float64) (HealthStatus, string, ui.Color) {
	return evaluateStatus(successRate, healthThresholds)
}

// GetThroughputStatus evaluates messages per second.
func GetThroughputStatus(mps float64) (HealthStatus, string, ui.Color) {
	return evaluateStatus(mps, throughputThresholds)
}

// GetErrorStatus evaluates how recent the last error is.
func GetErrorStatus(errorCount int64, lastErrorTime time.Time) (HealthStatus, string, ui.Color) {
	if errorCount == 0 {
		return HealthGood, "● NONE", ui.ColorGreen
	}

	timeSinceError := time.Since(lastErrorTime)
	if timeSinceError > ErrorTimeoutWarning {
		return HealthGood, "● NONE", ui.ColorGreen
	} else if timeSinceError > ErrorTimeoutCritical {
		return HealthWarning, "● RECENT", ui.ColorYellow
	}
	return HealthCritical, "● ACTIVE", ui.ColorRed
}

// CalculateQualityScore returns a 0-100 score: 50 points of success rate,
// 30 of throughput and 20 minus 2 per error.
func CalculateQualityScore(successRate, mps float64, errorCount int64) float64 {
	successScore := (successRate / 100.0) * 50.0

	throughputScore := 0.0
	switch {
	case mps >= QualityThroughputHigh:
		throughputScore = 30.0
	case mps >= QualityThroughputMedium:
		throughputScore = 25.0
	case mps >= QualityThroughputLow:
		throughputScore = 15.0
	case mps > 0:
		throughputScore = 10.0
	}

	errorScore := 20.0 - min(float64(errorCount)*2.0, 20.0)

	return successScore + throughputScore + errorScore
}

// CreateMetricsTable creates the ingestion counters table.
func CreateMetricsTable() *widgets.Table {
	table := widgets.NewTable()
	table.Title = "Ingestion"
	table.Rows = [][]string{
		{"Metric", "Value"},
		{"Messages received", "0"},
		{"Messages ingested", "0"},
		{"Messages failed", "0"},
		{"Dead lettered", "0"},
		{"Throughput (msg/s)", "0.00"},
		{"Success rate", "0.00%"},
		{"Last update", "-"},
	}
	table.TextStyle = ui.NewStyle(ui.ColorWhite)
	table.RowStyles[0] = ui.NewStyle(ui.ColorYellow, ui.ColorClear, ui.ModifierBold)
	table.ColumnWidths = []int{28, 20}
	return table
}

// CreateHealthDashboard creates the health indicators table.
func CreateHealthDashboard() *widgets.Table {
	table := widgets.NewTable()
	table.Title = "Health"
	table.Rows = [][]string{
		{"Indicator", "Status"},
		{"Overall", "●"},
		{"Success rate", "●"},
		{"Throughput", "●"},
		{"Errors", "●"},
		{"Uptime", "-"},
		{"Quality", "-"},
	}
	table.TextStyle = ui.NewStyle(ui.ColorWhite)
	table.RowStyles[0] = ui.NewStyle(ui.ColorYellow, ui.ColorClear, ui.ModifierBold)
	return table
}

var storeTableHeader = []string{"Store", "Visits", "Views", "Orders", "Revenue", "Avg order", "Conv."}

// CreateStoreTable creates the per-store stats table.
func CreateStoreTable() *widgets.Table {
	table := widgets.NewTable()
	table.Title = "Stores"
	table.Rows = [][]string{storeTableHeader, {"Loading...", "", "", "", "", "", ""}}
	table.TextStyle = ui.NewStyle(ui.ColorWhite)
	table.RowStyles[0] = ui.NewStyle(ui.ColorYellow, ui.ColorClear, ui.ModifierBold)
	return table
}

// CreateLogList creates the recent tracker.log entries list.
func CreateLogList() *widgets.List {
	list := widgets.NewList()
	list.Title = "Recent logs (tracker.log)"
	list.Rows = []string{"Waiting for logs..."}
	list.TextStyle = ui.NewStyle(ui.ColorWhite)
	list.WrapText = true
	return list
}

// CreateEventList creates the recent audit entries list.
func CreateEventList() *widgets.List {
	list := widgets.NewList()
	list.Title = "Recent messages (tracker.events)"
	list.Rows = []string{"Waiting for messages..."}
	list.TextStyle = ui.NewStyle(ui.ColorWhite)
	list.WrapText = true
	return list
}

// CreateThroughputChart creates the messages per second plot.
func CreateThroughputChart() *widgets.Plot {
	plot := widgets.NewPlot()
	plot.Title = "Throughput (msg/s)"
	plot.Data = [][]float64{{0, 0}}
	plot.AxesColor = ui.ColorWhite
	plot.LineColors[0] = ui.ColorGreen
	plot.Marker = widgets.MarkerDot
	return plot
}

// CreateRevenueChart creates the daily order value bar chart.
func CreateRevenueChart() *widgets.BarChart {
	chart := widgets.NewBarChart()
	chart.Title = "Daily order value"
	chart.BarWidth = 5
	chart.BarColors = []ui.Color{ui.ColorCyan}
	chart.NumFormatter = func(v float64) string { return fmt.Sprintf("%.0f", v) }
	return chart
}

// UpdateMetricsTable fills the ingestion table.
func UpdateMetricsTable(table *widgets.Table, m *Metrics) {
	table.Rows = [][]string{
		{"Metric", "Value"},
		{"Messages received", fmt.Sprintf("%d", m.MessagesReceived)},
		{"Messages ingested", fmt.Sprintf("%d", m.MessagesProcessed)},
		{"Messages failed", fmt.Sprintf("%d", m.MessagesFailed)},
		{"Dead lettered", fmt.Sprintf("%d", m.DeadLettered)},
		{"Throughput (msg/s)", fmt.Sprintf("%.2f", m.CurrentMessagesPerSec)},
		{"Success rate", fmt.Sprintf("%.2f%%", m.CurrentSuccessRate)},
		{"Last update", m.LastUpdateTime.Format("15:04:05")},
	}
}

// getGlobalHealthStatus is the worst of the individual statuses.
func getGlobalHealthStatus(successStatus, throughputStatus, errorStatus HealthStatus) (HealthStatus, string, ui.Color) {
	globalStatus := max(successStatus, throughputStatus, errorStatus)

	switch globalStatus {
	case HealthWarning:
		return globalStatus, "● WARNING", ui.ColorYellow
	case HealthCritical:
		return globalStatus, "● CRITICAL", ui.ColorRed
	default:
		return HealthGood, "● EXCELLENT", ui.ColorGreen
	}
}

func getQualityText(qualityScore float64) (string, ui.Color) {
	switch {
	case qualityScore >= QualityScoreExcellent:
		return fmt.Sprintf("EXCELLENT (%.0f)", qualityScore), ui.ColorGreen
	case qualityScore >= QualityScoreGood:
		return fmt.Sprintf("GOOD (%.0f)", qualityScore), ui.ColorYellow
	case qualityScore >= QualityScoreMedium:
		return fmt.Sprintf("FAIR (%.0f)", qualityScore), ui.ColorYellow
	}
	return fmt.Sprintf("POOR (%.0f)", qualityScore), ui.ColorRed
}

func formatUptime(uptime time.Duration) string {
	if uptime.Hours() >= 1 {
		return fmt.Sprintf("%.1fh", uptime.Hours())
	} else if uptime.Minutes() >= 1 {
		return fmt.Sprintf("%.0fm", uptime.Minutes())
	}
	return fmt.Sprintf("%.0fs", uptime.Seconds())
}

// UpdateHealthDashboard fills the health table.
func UpdateHealthDashboard(dashboard *widgets.Table, m *Metrics) {
	successStatus, successText, successColor := GetHealthStatus(m.CurrentSuccessRate)
	throughputStatus, throughputText, throughputColor := GetThroughputStatus(m.CurrentMessagesPerSec)
	errorStatus, errorText, errorColor := GetErrorStatus(m.ErrorCount, m.LastErrorTime)

	_, globalText, globalColor := getGlobalHealthStatus(successStatus, throughputStatus, errorStatus)
	qualityText, qualityColor := getQualityText(CalculateQualityScore(m.CurrentSuccessRate, m.CurrentMessagesPerSec, m.ErrorCount))

	dashboard.Rows = [][]string{
		{"Indicator", "Status"},
		{"Overall", globalText},
		{"Success rate", successText},
		{"Throughput", throughputText},
		{"Errors", errorText},
		{"Uptime", formatUptime(m.Uptime)},
		{"Quality", qualityText},
	}

	dashboard.RowStyles = make(map[int]ui.Style)
	dashboard.RowStyles[0] = ui.NewStyle(ui.ColorYellow, ui.ColorClear, ui.ModifierBold)
	dashboard.RowStyles[1] = ui.NewStyle(globalColor, ui.ColorClear, ui.ModifierBold)
	dashboard.RowStyles[2] = ui.NewStyle(successColor, ui.ColorClear)
	dashboard.RowStyles[3] = ui.NewStyle(throughputColor, ui.ColorClear)
	dashboard.RowStyles[4] = ui.NewStyle(errorColor, ui.ColorClear)
	dashboard.RowStyles[5] = ui.NewStyle(ui.ColorCyan, ui.ColorClear)
	dashboard.RowStyles[6] = ui.NewStyle(qualityColor, ui.ColorClear, ui.ModifierBold)
}

// UpdateStoreTable fills the per-store table from snap. Amounts use the
// default symbol: the event log does not carry the store currency.
func UpdateStoreTable(table *widgets.Table, snap StatsSnapshot) {
	table.Title = fmt.Sprintf("Stores | %s | %d events | [r] change range", snap.Range.Label, snap.Events)
	rows := [][]string{storeTableHeader}
	for _, s := range snap.Stores {
		rows = append(rows, []string{
			s.StoreID,
			fmt.Sprintf("%d", s.Visits),
			fmt.Sprintf("%d", s.ProductViews),
			fmt.Sprintf("%d", s.Orders),
			currency.Format(s.Revenue, ""),
			currency.Format(s.AverageOrderValue, ""),
			fmt.Sprintf("%.1f%%", s.ConversionRate),
		})
	}
	if len(rows) == 1 {
		rows = append(rows, []string{"No activity in range", "", "", "", "", "", ""})
	}
	table.Rows = rows
}

// UpdateRevenueChart fills the bar chart with one bar per day, labeled by
// day of month.
func UpdateRevenueChart(chart *widgets.BarChart, snap StatsSnapshot) {
	chart.Title = "Daily order value | " + snap.Range.Label
	chart.Data = snap.Daily
	chart.MaxVal = 0
	if peak := maxValue(snap.Daily); peak == 0 {
		chart.MaxVal = 1
	}
	labels := make([]string, len(snap.DailyLabels))
	for i, day := range snap.DailyLabels {
		if len(day) == len("2006-01-02") {
			labels[i] = day[8:]
		} else {
			labels[i] = day
		}
	}
	chart.Labels = labels
}

func maxValue(values []float64) float64 {
	peak := 0.0
	for _, v := range values {
		peak = max(peak, v)
	}
	return peak
}

func truncate(row string, limit int) string {
	if len(row) > limit {
		return row[:limit-len(TruncateSuffix)] + TruncateSuffix
	}
	return row
}

func formatLogRow(log models.LogEntry) string {
	levelIcon := "🟢"
	switch log.Level {
	case models.LogLevelERROR:
		levelIcon = "🔴"
	case models.LogLevelWARN:
		levelIcon = "🟡"
	}

	timeStr := log.Timestamp
	if len(timeStr) > 19 {
		timeStr = timeStr[11:19]
	}

	return truncate(fmt.Sprintf("%s [%s] %s", levelIcon, timeStr, log.Message), MaxLogRowLength)
}

// UpdateLogList shows logs newest first.
func UpdateLogList(list *widgets.List, logs []models.LogEntry) {
	rows := make([]string, 0, len(logs))
	for i := len(logs) - 1; i >= 0; i-- {
		rows = append(rows, formatLogRow(logs[i]))
	}
	if len(rows) == 0 {
		rows = []string{"Waiting for logs..."}
	}
	list.Rows = rows
}

func formatEventRow(event models.EventEntry) string {
	status := "❌"
	if event.Deserialized {
		status = "✅"
	}

	timeStr := event.Timestamp
	if len(timeStr) > 19 {
		timeStr = timeStr[11:19]
	}

	return truncate(fmt.Sprintf("%s [%s] Offset: %d | %s | %s", status, timeStr, event.KafkaOffset, event.StoreID, event.EventType), MaxEventRowLength)
}

// UpdateEventList shows audit entries newest first.
func UpdateEventList(list *widgets.List, events []models.EventEntry) {
	rows := make([]string, 0, len(events))
	for i := len(events) - 1; i >= 0; i-- {
		rows = append(rows, formatEventRow(events[i]))
	}
	if len(rows) == 0 {
		rows = []string{"Waiting for messages..."}
	}
	list.Rows = rows
}

// UpdateThroughputChart plots the throughput history. A plot needs at least
// two points.
func UpdateThroughputChart(chart *widgets.Plot, mps []float64) {
	switch len(mps) {
	case 0:
		chart.Data = [][]float64{{0, 0}}
	case 1:
		chart.Data = [][]float64{{mps[0], mps[0]}}
	default:
		chart.Data = [][]float64{mps}
	}
}

// Dashboard groups the widgets.
type Dashboard struct {
	Metrics    *widgets.Table
	Health     *widgets.Table
	Stores     *widgets.Table
	Logs       *widgets.List
	Events     *widgets.List
	Throughput *widgets.Plot
	Revenue    *widgets.BarChart
}

// NewDashboard creates every widget.
func NewDashboard() *Dashboard {
	return &Dashboard{
		Metrics:    CreateMetricsTable(),
		Health:     CreateHealthDashboard(),
		Stores:     CreateStoreTable(),
		Logs:       CreateLogList(),
		Events:     CreateEventList(),
		Throughput: CreateThroughputChart(),
		Revenue:    CreateRevenueChart(),
	}
}

// Layout places the widgets for a terminal of width x height:
// ingestion and health on top, stores, then logs and messages, then charts.
func (d *Dashboard) Layout(width, height int) {
	mid := width / 2
	d.Metrics.SetRect(0, 0, 50, 10)
	d.Health.SetRect(50, 0, width, 10)
	d.Stores.SetRect(0, 10, width, 22)
	d.Logs.SetRect(0, 22, mid, 32)
	d.Events.SetRect(mid, 22, width, 32)
	d.Throughput.SetRect(0, 32, mid, max(height, 42))
	d.Revenue.SetRect(mid, 32, width, max(height, 42))
}

// Drawables lists the widgets in render order.
func (d *Dashboard) Drawables() []ui.Drawable {
	return []ui.Drawable{d.Metrics, d.Health, d.Stores, d.Logs, d.Events, d.Throughput, d.Revenue}
}

// UpdateUI refreshes every widget from the monitor state.
func (m *Monitor) UpdateUI(d *Dashboard) {
	m.Metrics.mu.RLock()
	UpdateMetricsTable(d.Metrics, m.Metrics)
	UpdateHealthDashboard(d.Health, m.Metrics)
	UpdateLogList(d.Logs, m.Metrics.RecentLogs)
	UpdateEventList(d.Events, m.Metrics.RecentEvents)
	UpdateThroughputChart(d.Throughput, m.Metrics.MessagesPerSecond)
	m.Metrics.mu.RUnlock()

	if m.Stats != nil {
		snap := m.Stats.Snapshot()
		UpdateStoreTable(d.Stores, snap)
		UpdateRevenueChart(d.Revenue, snap)
	}
}

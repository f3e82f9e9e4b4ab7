// Package version хранит сведения о сборке storefront, заданные через -ldflags:
//
//	-X github.com/vladislavdragonenkov/digidine/internal/version.version=v1.2.0
package version

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// BuildInfo описывает текущую сборку.
type BuildInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// Get возвращает сведения о сборке.
func Get() BuildInfo {
	return BuildInfo{Version: version, Commit: commit, Date: date}
}

// GetVersion возвращает версию сборки.
func GetVersion() string { return version }

func (b BuildInfo) String() string {
	return fmt.Sprintf("digidine-storefront version=%s commit=%s date=%s", b.Version, b.Commit, b.Date)
}

// Fields возвращает сведения о сборке как поля лога.
func (b BuildInfo) Fields() log.Fields {
	return log.Fields{"version": b.Version, "commit": b.Commit, "build_date": b.Date}
}

// NewCollector возвращает gauge storefront_build_info со значением 1 и метками сборки.
func NewCollector() prometheus.Collector {
	info := Get()
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "storefront_build_info",
		Help:        "Build information of the running storefront service.",
		ConstLabels: prometheus.Labels{"version": info.Version, "commit": info.Commit, "date": info.Date},
	})
	gauge.Set(1)
	return gauge
}

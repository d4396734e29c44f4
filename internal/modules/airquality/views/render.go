package views

import (
	"errors"
	"html/template"
	"io"
	"io/fs"

	"streetlight-server/internal/modules/airquality/types"
)

var dashboardTmpl *template.Template

var funcs = template.FuncMap{
	"gasRows": GasRows,
}

// loadTemplatesFromFS parses the dashboard templates under dir in fsys.
func loadTemplatesFromFS(fsys fs.FS, dir string) error {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return err
	}
	tmpl, err := template.New("dashboard").Funcs(funcs).ParseFS(sub, "*.html", "partials/*.html")
	if err != nil {
		return err
	}
	dashboardTmpl = tmpl
	return nil
}

// LoadTemplates parses the embedded templates. Call once at startup.
func LoadTemplates() error {
	return loadTemplatesFromFS(viewsFS, "templates")
}

// GasRow is one line of the pollutant table.
type GasRow struct {
	Key   string
	Label string
	Unit  string
	Value float64
}

// GasRows lists the ten pollutants in display order.
func GasRows(g types.GasLevels) []GasRow {
	return []GasRow{
		{"co2", "CO₂", "ppm", g.CO2},
		{"co", "CO", "ppm", g.CO},
		{"no2", "NO₂", "ppm", g.NO2},
		{"nh3", "NH₃", "ppm", g.NH3},
		{"benzene", "Benzene", "ppm", g.Benzene},
		{"toluene", "Toluene", "ppm", g.Toluene},
		{"alcohol", "Alcohol", "ppm", g.Alcohol},
		{"acetone", "Acetone", "ppm", g.Acetone},
		{"h2s", "H₂S", "ppm", g.H2S},
		{"smoke", "Smoke", "µg/m³", g.Smoke},
	}
}

type DashboardData struct {
	Payload        types.Payload
	Source         string
	Running        bool
	WindowCapacity int
}

func RenderDashboard(w io.Writer, data DashboardData) error {
	if dashboardTmpl == nil {
		return errors.New("dashboard template not loaded: call views.LoadTemplates during startup")
	}
	return dashboardTmpl.ExecuteTemplate(w, "dashboard.html", data)
}

// RenderGasPartial executes only the pollutant table.
func RenderGasPartial(w io.Writer, gas types.GasLevels) error {
	if dashboardTmpl == nil {
		return errors.New("dashboard template not loaded: call views.LoadTemplates during startup")
	}
	return dashboardTmpl.ExecuteTemplate(w, "partials/gas.html", gas)
}

package views

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teemow/ads-mcp/internal/ads"
)

var (
	// ErrNoFields means generation produced no usable view.
	ErrNoFields = errors.New("no view produced any fields")
	// ErrUnknownView is returned by Lookup for a name not in the definitions.
	ErrUnknownView = errors.New("unknown view")
)

// FieldSource looks up GAQL field metadata.
type FieldSource interface {
	SearchFields(ctx context.Context, query string) ([]ads.Field, error)
}

// Spec names a reporting view and the field prefix it covers.
type Spec struct {
	Name        string
	Description string
}

// DefaultSpecs are the reporting views documented out of the box.
var DefaultSpecs = []Spec{
	{Name: "customer", Description: "Account level settings and performance."},
	{Name: "campaign", Description: "Campaign settings, status, budget and bidding strategy."},
	{Name: "campaign_budget", Description: "Budgets shared by or assigned to campaigns."},
	{Name: "ad_group", Description: "Ad groups within campaigns."},
	{Name: "ad_group_ad", Description: "Ads and their approval status."},
	{Name: "ad_group_criterion", Description: "Keywords, audiences and other ad group targeting."},
	{Name: "keyword_view", Description: "Keyword performance."},
	{Name: "search_term_view", Description: "Search terms that triggered ads."},
	{Name: "geographic_view", Description: "Performance by geographic location."},
	{Name: "conversion_action", Description: "Conversion actions and their settings."},
	{Name: "metrics", Description: "Performance metrics selectable with most resources."},
	{Name: "segments", Description: "Segments that split metrics by date, device and more."},
}

// View documents one resource.
type View struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Fields      []ads.Field `yaml:"fields,omitempty"`
}

// Definitions is the view-definitions artifact.
type Definitions struct {
	GeneratedAt time.Time `yaml:"generated_at"`
	APIVersion  string    `yaml:"api_version"`
	Views       []View    `yaml:"views"`
}

// Default returns the built-in views without field metadata.
func Default() *Definitions {
	d := &Definitions{}
	for _, s := range DefaultSpecs {
		d.Views = append(d.Views, View{Name: s.Name, Description: s.Description})
	}
	return d
}

// FieldsQuery selects the metadata of every field under resource.
func FieldsQuery(resource string) string {
	return fmt.Sprintf("SELECT name, category, data_type, selectable, filterable, sortable WHERE name LIKE '%s.%%'", resource)
}

// Generate queries field metadata for each spec. Views whose lookup fails
// are kept without fields; the joined errors are returned alongside.
func Generate(ctx context.Context, src FieldSource, apiVersion string, specs []Spec) (*Definitions, error) {
	d := &Definitions{GeneratedAt: time.Now().UTC(), APIVersion: apiVersion}

	var errs []error
	populated := 0
	for _, s := range specs {
		fields, err := src.SearchFields(ctx, FieldsQuery(s.Name))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
		sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
		if len(fields) > 0 {
			populated++
		}
		d.Views = append(d.Views, View{Name: s.Name, Description: s.Description, Fields: fields})
	}

	if populated == 0 {
		return nil, errors.Join(append([]error{ErrNoFields}, errs...)...)
	}
	return d, errors.Join(errs...)
}

// Refresh generates definitions and writes them to path. The file is only
// replaced when at least one view produced fields.
func Refresh(ctx context.Context, src FieldSource, apiVersion, path string) (*Definitions, error) {
	d, genErr := Generate(ctx, src, apiVersion, DefaultSpecs)
	if d == nil {
		return nil, genErr
	}
	if err := Write(path, d); err != nil {
		return nil, err
	}
	return d, genErr
}

// Write stores d at path through a temporary file and rename.
func Write(path string, d *Definitions) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".views-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc := yaml.NewEncoder(tmp)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode views: %w", err)
	}
	if err := enc.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode views: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write views: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to install %s: %w", path, err)
	}
	return nil
}

// Load reads definitions written by Write.
func Load(path string) (*Definitions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var d Definitions
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &d, nil
}

// Names returns the view names in definition order.
func (d *Definitions) Names() []string {
	names := make([]string, 0, len(d.Views))
	for _, v := range d.Views {
		names = append(names, v.Name)
	}
	return names
}

// Lookup finds a view by name, ignoring case.
func (d *Definitions) Lookup(name string) (View, error) {
	for _, v := range d.Views {
		if strings.EqualFold(v.Name, strings.TrimSpace(name)) {
			return v, nil
		}
	}
	return View{}, fmt.Errorf("%w %q, valid views: %s", ErrUnknownView, name, strings.Join(d.Names(), ", "))
}

// Markdown renders the view as a field table.
func (v View) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n%s\n\n", v.Name, v.Description)
	if len(v.Fields) == 0 {
		b.WriteString("Field metadata has not been generated yet. Run `ads-mcp views refresh`.\n")
		return b.String()
	}
	b.WriteString("| Field | Type | Category | Selectable | Filterable | Sortable |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for _, f := range v.Fields {
		fmt.Fprintf(&b, "| `%s` | %s | %s | %s | %s | %s |\n",
			f.Name, f.DataType, f.Category, yesNo(f.Selectable), yesNo(f.Filterable), yesNo(f.Sortable))
	}
	return b.String()
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

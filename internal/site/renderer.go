package site

import (
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/heizoel/internal/inquiries"
	"github.com/gin-gonic/gin/render"
)

//go:embed templates/*.html
var templateFiles embed.FS

// Template names accepted by Renderer.Instance.
const (
	TemplatePage     = "page"
	TemplateContact  = "contact"
	TemplateOrder    = "order"
	TemplateConfirm  = "confirm"
	TemplateNotFound = "notfound"
	TemplateAuth     = "auth"
	TemplateAdmin    = "admin"
)

var templateNames = []string{
	TemplatePage,
	TemplateContact,
	TemplateOrder,
	TemplateConfirm,
	TemplateNotFound,
	TemplateAuth,
	TemplateAdmin,
}

var templateFuncs = template.FuncMap{
	"product":      inquiries.ProductLabel,
	"deliveryTime": inquiries.DeliveryTimeLabel,
	"salutation":   inquiries.SalutationLabel,
}

// Phone is the number shown in the header.
type Phone struct {
	Number  string
	Label   string
	TelLink template.URL
}

// NewPhone builds the header phone. Links outside the tel: scheme are dropped.
func NewPhone(number, label, link string) Phone {
	phone := Phone{Number: number, Label: label}
	if strings.HasPrefix(strings.ToLower(link), "tel:") {
		phone.TelLink = template.URL(link)
	}
	return phone
}

// FormOptions carries the select choices of the public forms.
type FormOptions struct {
	Salutations   []inquiries.Option
	Products      []inquiries.Option
	DeliveryTimes []inquiries.Option
}

// View is the data passed to every template.
type View struct {
	SiteName   string
	Title      string
	Path       string
	Slug       string
	Navigation []Page
	Phone      Phone
	CSRFField  template.HTML
	Body       template.HTML
	Message    string
	Values     map[string]string
	Errors     map[string]string
	Options    FormOptions
	Data       any
	Year       int
}

// Value returns the submitted value of a form field.
func (v View) Value(name string) string {
	return v.Values[name]
}

// FieldError returns the validation message of a form field.
func (v View) FieldError(name string) string {
	return v.Errors[name]
}

// Renderer implements gin's HTMLRender over the embedded templates.
type Renderer struct {
	templates map[string]*template.Template
	bodies    map[string]template.HTML
	siteName  string
	clock     func() time.Time
}

// NewRenderer parses every template and pre-renders the markdown pages.
func NewRenderer(siteName string) (*Renderer, error) {
	templates := make(map[string]*template.Template, len(templateNames))
	for _, name := range templateNames {
		tmpl, err := template.New("layout").Funcs(templateFuncs).ParseFS(templateFiles, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("site: parse %s: %w", name, err)
		}
		templates[name] = tmpl
	}
	bodies, err := renderPageBodies()
	if err != nil {
		return nil, err
	}
	return &Renderer{templates: templates, bodies: bodies, siteName: siteName, clock: time.Now}, nil
}

// Instance returns the gin render for a named template. Unknown names render the 404 page.
func (r *Renderer) Instance(name string, data any) render.Render {
	tmpl, ok := r.templates[name]
	if !ok {
		tmpl = r.templates[TemplateNotFound]
	}
	if view, isView := data.(View); isView {
		data = r.complete(view)
	}
	return render.HTML{Template: tmpl, Name: "layout", Data: data}
}

// PageView prepares the view of a markdown page.
func (r *Renderer) PageView(page Page) View {
	return View{Title: page.Title, Path: page.Path, Slug: page.Slug, Body: r.bodies[page.Slug]}
}

// SiteName returns the configured site name.
func (r *Renderer) SiteName() string {
	return r.siteName
}

// DefaultFormOptions returns the catalog choices for the public forms.
func DefaultFormOptions() FormOptions {
	return FormOptions{
		Salutations:   inquiries.Salutations(),
		Products:      inquiries.Products(),
		DeliveryTimes: inquiries.DeliveryTimes(),
	}
}

func (r *Renderer) complete(view View) View {
	if view.SiteName == "" {
		view.SiteName = r.siteName
	}
	if view.Navigation == nil {
		view.Navigation = Navigation()
	}
	if view.Year == 0 {
		view.Year = r.clock().Year()
	}
	if view.Options.Salutations == nil {
		view.Options = DefaultFormOptions()
	}
	return view
}

package overlay

import (
	"fmt"
	"html/template"
	"strings"
)

// PanelItem is one annotation row in the panel.
type PanelItem struct {
	ID      string
	Label   string
	Tag     string
	Color   string
	Padding float64
	Focused bool
	Child   bool
}

// PanelData is the panel view model.
type PanelData struct {
	Items      []PanelItem
	Focused    bool
	FocusLabel string
	Palette    []Color
}

// The panel is a thin view: every control maps to a data-dommark-action or
// data-dommark-field that the actuator forwards over the binding untouched.
var panelTmpl = template.Must(template.New("panel").Parse(`
<div data-dommark-ui="panel-body">
  <div style="font-weight:bold;margin-bottom:8px;">
    {{if .Focused}}Focus: {{.FocusLabel}}{{else}}Annotations{{end}}
  </div>
  {{range .Items}}
  <div data-dommark-ann="{{.ID}}" style="border-top:1px solid #e4e4e7;padding:6px 0;{{if .Child}}margin-left:12px;{{end}}">
    <input data-dommark-field="label" value="{{.Label}}" style="width:60px;"/>
    <span style="color:#71717a;">&lt;{{.Tag}}&gt;</span>
    {{range $.Palette}}<button data-dommark-action="color" data-dommark-value="{{.Name}}" title="{{.Name}}" style="background:{{.Hex}};width:14px;height:14px;border-radius:7px;border:none;margin:0 1px;"></button>{{end}}
    <input data-dommark-field="padding" type="number" min="0" value="{{.Padding}}" style="width:44px;"/>
    {{if .Focused}}<button data-dommark-action="unfocus">done</button>
    {{else if not .Child}}<button data-dommark-action="focus">focus</button>{{end}}
    <button data-dommark-action="deselect">×</button>
  </div>
  {{end}}
  <div style="border-top:1px solid #e4e4e7;padding-top:8px;margin-top:4px;">
    <button data-dommark-action="export">save png</button>
    <button data-dommark-action="export_copy">copy png</button>
    <button data-dommark-action="clear">{{if .Focused}}clear group{{else}}clear all{{end}}</button>
  </div>
</div>`))

// RenderPanelHTML renders the panel view model to HTML.
func RenderPanelHTML(data PanelData) (string, error) {
	if data.Palette == nil {
		data.Palette = Palette
	}
	var b strings.Builder
	if err := panelTmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("overlay: render panel template: %w", err)
	}
	return b.String(), nil
}

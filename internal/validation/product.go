package validation

import (
	"regexp"

	"github.com/org/servercatalog/pkg/models"
)

var titlePattern = regexp.MustCompile(`^[a-zA-Z0-9\s\-_.]+$`)

// ProductSchema is the field table for create requests.
var ProductSchema = Schema{
	{"titulo", Rule{Type: TypeString, Required: true, MinLen: 3, MaxLen: 100, Pattern: titlePattern}},
	{"descripcion", Rule{Type: TypeString, Required: true, MinLen: 10, MaxLen: 500}},
	{"precio", Rule{Type: TypeNumber, Required: true, HasMin: true, Min: 0, HasMax: true, Max: 999999}},
	{"nucleos", Rule{Type: TypeNumber, Required: true, HasMin: true, Min: 1, HasMax: true, Max: 128, Integer: true}},
	{"ram", Rule{Type: TypeNumber, Required: true, HasMin: true, Min: 1, HasMax: true, Max: 1024, Integer: true}},
	{"disco", Rule{Type: TypeNumber, Required: true, HasMin: true, Min: 1, HasMax: true, Max: 10000, Integer: true}},
	{"cluster", Rule{Type: TypeString, MaxLen: 50}},
	{"estado", Rule{Type: TypeString, Enum: models.Statuses}},
}

// ProductUpdateSchema is ProductSchema with every field optional.
var ProductUpdateSchema = ProductSchema.Partial()

const errNoFields = "at least one field must be provided"

// ValidateCreate validates a create payload and converts it to a draft.
func ValidateCreate(data map[string]any) (models.ProductDraft, Result) {
	res := Validate(data, ProductSchema)
	if !res.Valid {
		return models.ProductDraft{}, res
	}
	d := models.ProductDraft{
		Title:       str(res.Data, "titulo"),
		Description: str(res.Data, "descripcion"),
		Price:       res.Data["precio"].(float64),
		Cores:       int(res.Data["nucleos"].(float64)),
		Memory:      int(res.Data["ram"].(float64)),
		Disk:        int(res.Data["disco"].(float64)),
		Cluster:     str(res.Data, "cluster"),
		Status:      str(res.Data, "estado"),
	}
	if d.Status == "" {
		d.Status = models.StatusActive
	}
	return d, res
}

// ValidateUpdate validates a partial payload. At least one field must survive.
func ValidateUpdate(data map[string]any) (models.ProductPatch, Result) {
	res := Validate(data, ProductUpdateSchema)
	if !res.Valid {
		return models.ProductPatch{}, res
	}

	var p models.ProductPatch
	if v, ok := res.Data["titulo"].(string); ok {
		p.Title = &v
	}
	if v, ok := res.Data["descripcion"].(string); ok {
		p.Description = &v
	}
	if v, ok := res.Data["precio"].(float64); ok {
		p.Price = &v
	}
	p.Cores = intPtr(res.Data, "nucleos")
	p.Memory = intPtr(res.Data, "ram")
	p.Disk = intPtr(res.Data, "disco")
	if v, ok := res.Data["cluster"].(string); ok {
		p.Cluster = &v
	}
	if v, ok := res.Data["estado"].(string); ok {
		p.Status = &v
	}
	if p.Empty() {
		res.Valid = false
		res.Errors = append(res.Errors, errNoFields)
		return models.ProductPatch{}, res
	}
	return p, res
}

func str(m map[string]any, k string) string {
	s, _ := m[k].(string)
	return s
}

func intPtr(m map[string]any, k string) *int {
	f, ok := m[k].(float64)
	if !ok {
		return nil
	}
	n := int(f)
	return &n
}

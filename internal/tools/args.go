package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mark3labs/mcp-go/mcp"
)

// PathID is an identifier substituted into an endpoint path. Callers may send
// it as a JSON string or a JSON number.
type PathID string

// pathIDField is the argument name every PathID is bound to.
const pathIDField = "id"

var errPathIDType = errors.New("must be of type string or number")

func (p *PathID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*p = PathID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errPathIDType
	}
	*p = PathID(n.String())
	return nil
}

type pathArgs interface {
	pathID() string
}

type noArgs struct{}

type idArgs struct {
	ID PathID `json:"id" validate:"required"`
}

func (a *idArgs) pathID() string { return string(a.ID) }

type createClientArgs struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email"`
	TaxID string `json:"tax_id"`
}

type createInvoiceArgs struct {
	ClientID *float64 `json:"client_id" validate:"required"`
	Date     string   `json:"date" validate:"required,datetime=2006-01-02"`
	DueDate  string   `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	Notes    string   `json:"notes"`
}

type createLineItemArgs struct {
	InvoiceID   *float64 `json:"invoice_id" validate:"required"`
	ProductID   *float64 `json:"product_id"`
	Description string   `json:"description" validate:"required"`
	Quantity    *float64 `json:"quantity" validate:"required"`
	UnitPrice   *float64 `json:"unit_price" validate:"required"`
	TaxRate     *float64 `json:"tax_rate"`
}

type downloadArgs struct {
	ID         PathID `json:"id" validate:"required"`
	OutputPath string `json:"output_path" validate:"required"`
}

func (a *downloadArgs) pathID() string { return string(a.ID) }

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// bind decodes args into the route's typed struct and validates it against the
// declared schema. The returned error wraps ErrInvalidArguments.
func (d *Dispatcher) bind(rt route, args map[string]any) (any, error) {
	target := rt.newArgs()
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("%w for %s: %v", ErrInvalidArguments, rt.tool.Name, err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		if errors.Is(err, errPathIDType) {
			return nil, fmt.Errorf("%w for %s: argument %q %v",
				ErrInvalidArguments, rt.tool.Name, pathIDField, errPathIDType)
		}
		var ute *json.UnmarshalTypeError
		if errors.As(err, &ute) && ute.Field != "" {
			return nil, fmt.Errorf("%w for %s: argument %q must be of type %s",
				ErrInvalidArguments, rt.tool.Name, ute.Field, schemaType(rt.tool, ute.Field))
		}
		return nil, fmt.Errorf("%w for %s: %v", ErrInvalidArguments, rt.tool.Name, err)
	}
	if err := d.validate.Struct(target); err != nil {
		var ve validator.ValidationErrors
		if !errors.As(err, &ve) {
			return nil, fmt.Errorf("%w for %s: %v", ErrInvalidArguments, rt.tool.Name, err)
		}
		msgs := make([]string, 0, len(ve))
		for _, fe := range ve {
			msgs = append(msgs, describe(fe))
		}
		return nil, fmt.Errorf("%w for %s: %s", ErrInvalidArguments, rt.tool.Name, strings.Join(msgs, "; "))
	}
	return target, nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("missing required argument %q", fe.Field())
	case "datetime":
		return fmt.Sprintf("argument %q must be a date in YYYY-MM-DD format", fe.Field())
	default:
		return fmt.Sprintf("argument %q failed %s validation", fe.Field(), fe.Tag())
	}
}

func schemaType(tool mcp.Tool, field string) string {
	if prop, ok := tool.InputSchema.Properties[field].(map[string]any); ok {
		if t, ok := prop["type"].(string); ok {
			return t
		}
	}
	return "unknown"
}

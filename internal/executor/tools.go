package executor

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/BioTRaX/Growen-sub001/pkg/contracts"
	"github.com/BioTRaX/Growen-sub001/pkg/models"
)

// Tool names exposed to the model.
const (
	ToolSearchProducts  = "search_products"
	ToolProductInfo     = "get_product_info"
	ToolProductFullInfo = "get_product_full_info"
)

// ErrorCode is the closed set of per-call failures fed back to the model.
type ErrorCode string

const (
	CodeUnknownTool       ErrorCode = "unknown_tool"
	CodeMissingQuery      ErrorCode = "missing_query"
	CodeMissingIdentifier ErrorCode = "missing_identifier"
	CodeMissingRequired   ErrorCode = "missing_required"
	CodePermissionDenied  ErrorCode = "permission_denied"
	CodeNetworkFailure    ErrorCode = "network_failure"
	CodeCallFailed        ErrorCode = "call_failed"
)

// Parameter aliases models invent for the canonical argument names.
var (
	queryAliases = []string{
		"query", "q", "term", "search", "search_term", "product", "product_name",
		"name", "text", "texto", "busqueda", "nombre", "producto",
	}
	productIDAliases = []string{"product_id", "id", "productId", "internal_id", "item_id"}
	skuAliases       = []string{"sku", "canonical_sku", "sku_canonico", "codigo", "code"}
)

// SearchArgs is the normalized argument set of search_products.
type SearchArgs struct {
	Query string
}

func (a SearchArgs) params() map[string]interface{} {
	return map[string]interface{}{"query": a.Query}
}

// DetailArgs is the normalized argument set of the detail tools.
// ProductID wins over SKU when both are present.
type DetailArgs struct {
	ProductID string
	SKU       string
}

func (a DetailArgs) params() map[string]interface{} {
	if a.ProductID != "" {
		return map[string]interface{}{"product_id": a.ProductID}
	}
	return map[string]interface{}{"sku": a.SKU}
}

// ── Schemas ─────────────────────────────────────────────────

// SchemaFor returns the tools visible to role. The extended-detail tool is
// only offered to elevated roles.
func SchemaFor(role string) []models.ToolDefinition {
	tools := []models.ToolDefinition{
		{
			Type: "function",
			Function: models.ToolFunction{
				Name:        ToolSearchProducts,
				Description: "Busca productos del catálogo por texto libre. Devuelve nombre, precio, stock y etiquetas.",
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"query": map[string]interface{}{
							"type":        "string",
							"description": "Nombre o término del producto a buscar",
						},
					},
					"required": []string{"query"},
				},
			},
		},
		detailSchema(ToolProductInfo, "Obtiene el detalle de un producto por id interno o SKU canónico."),
	}
	if contracts.IsElevated(role) {
		tools = append(tools, detailSchema(ToolProductFullInfo,
			"Obtiene el detalle extendido de un producto (costos, proveedores, stock por depósito)."))
	}
	return tools
}

func detailSchema(name, description string) models.ToolDefinition {
	return models.ToolDefinition{
		Type: "function",
		Function: models.ToolFunction{
			Name:        name,
			Description: description,
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"product_id": map[string]interface{}{
						"type":        "string",
						"description": "Id interno del producto",
					},
					"sku": map[string]interface{}{
						"type":        "string",
						"description": "SKU canónico del producto",
					},
				},
			},
		},
	}
}

func knownTool(name string) bool {
	switch name {
	case ToolSearchProducts, ToolProductInfo, ToolProductFullInfo:
		return true
	}
	return false
}

func isDetailTool(name string) bool {
	return name == ToolProductInfo || name == ToolProductFullInfo
}

// ── Argument normalization ──────────────────────────────────

// decodeArgs parses model-generated JSON. Invalid input yields an empty map.
func decodeArgs(raw string) map[string]interface{} {
	args := map[string]interface{}{}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		return map[string]interface{}{}
	}
	return args
}

// NormalizeSearch maps aliased arguments onto SearchArgs.
func NormalizeSearch(args map[string]interface{}) (SearchArgs, ErrorCode) {
	q := firstString(args, queryAliases)
	if q == "" {
		return SearchArgs{}, CodeMissingQuery
	}
	return SearchArgs{Query: q}, ""
}

// NormalizeDetail maps aliased arguments onto DetailArgs.
func NormalizeDetail(args map[string]interface{}) (DetailArgs, ErrorCode) {
	a := DetailArgs{
		ProductID: firstString(args, productIDAliases),
		SKU:       firstString(args, skuAliases),
	}
	if a.ProductID == "" && a.SKU == "" {
		return DetailArgs{}, CodeMissingIdentifier
	}
	return a, ""
}

func firstString(args map[string]interface{}, keys []string) string {
	for _, k := range keys {
		if v, ok := args[k]; ok {
			if s := scalarString(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func scalarString(v interface{}) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	}
	return ""
}

// ── Payload helpers ─────────────────────────────────────────

// SearchItems extracts the item list of a search payload.
func SearchItems(payload map[string]interface{}) []map[string]interface{} {
	if payload == nil {
		return nil
	}
	var raw []interface{}
	for _, key := range []string{"items", "products", "results"} {
		if v, ok := payload[key].([]interface{}); ok {
			raw = v
			break
		}
	}
	items := make([]map[string]interface{}, 0, len(raw))
	for _, it := range raw {
		if m, ok := it.(map[string]interface{}); ok {
			items = append(items, m)
		}
	}
	return items
}

// itemIdentity returns the detail arguments addressing a search item:
// its product id, else its canonical SKU.
func itemIdentity(item map[string]interface{}) (DetailArgs, bool) {
	if id := firstString(item, []string{"product_id", "id"}); id != "" {
		return DetailArgs{ProductID: id}, true
	}
	if sku := firstString(item, []string{"canonical_sku", "sku"}); sku != "" {
		return DetailArgs{SKU: sku}, true
	}
	return DetailArgs{}, false
}

func errorPayload(code ErrorCode) map[string]interface{} {
	p := map[string]interface{}{"error": string(code)}
	if code == CodeMissingQuery || code == CodeMissingIdentifier {
		p["missing_required"] = true
	}
	return p
}

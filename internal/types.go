package internal

// RawGrid is a rectangular sequence of rows as delivered by a grid source.
// Cells are the raw string renderings of whatever the source contained.
type RawGrid [][]string

type ColumnRole string

const (
	RoleRowNumber   ColumnRole = "row_number"
	RoleQty         ColumnRole = "qty"
	RoleTotalQty    ColumnRole = "total_qty"
	RoleBlankX      ColumnRole = "blank_x"
	RoleBlankY      ColumnRole = "blank_y"
	RoleRawMaterial ColumnRole = "raw_material"
	RoleDescription ColumnRole = "description"
	RolePartCode    ColumnRole = "part_code"
	RoleProcess     ColumnRole = "process"
)

// AllColumnRoles lists the nine semantic roles in resolution order.
// TotalQty comes before Qty so "QTD TOTAL" headers are not claimed by the
// plain quantity role first.
var AllColumnRoles = []ColumnRole{
	RoleRowNumber, RoleTotalQty, RoleQty, RoleBlankX, RoleBlankY,
	RoleRawMaterial, RoleDescription, RolePartCode, RoleProcess,
}

// HeaderMap associates each resolved column role with a column index.
// Absent roles were not found in the header row.
type HeaderMap map[ColumnRole]int

func (h HeaderMap) Col(role ColumnRole) (int, bool) {
	idx, ok := h[role]
	return idx, ok
}

type MaterialKind string

const (
	MaterialSheetMetal  MaterialKind = "sheet_metal"
	MaterialTubeProfile MaterialKind = "tube_profile"
	MaterialNonMetal    MaterialKind = "non_metal"
	MaterialUnknown     MaterialKind = "unknown"
)

type MaterialName string

const (
	MaterialInox304  MaterialName = "#304"
	MaterialInox430  MaterialName = "#430"
	MaterialInox316  MaterialName = "#316"
	MaterialGalv     MaterialName = "GALV"
	MaterialAluzinc  MaterialName = "ALUZINC"
	MaterialAluminio MaterialName = "ALUMINIO"
	MaterialAco      MaterialName = "ACO"
	MaterialInox     MaterialName = "INOX"
	MaterialOutro    MaterialName = "OUTRO"
)

type MaterialClassification struct {
	Kind        MaterialKind  `json:"kind"`
	Name        *MaterialName `json:"name"`
	ThicknessMM *float64      `json:"thicknessMm"`
	RawCode     *string       `json:"rawCode"`
	Confidence  float64       `json:"confidence"`
}

type MissingCode string

const (
	MissingQty       MissingCode = "missing_qty"
	MissingX         MissingCode = "missing_x"
	MissingY         MissingCode = "missing_y"
	MissingMaterial  MissingCode = "missing_material"
	MissingThickness MissingCode = "missing_thickness"
)

// NormalizedItem is one production-order line after header resolution.
// RowIndex is 1-based counting from the row after the header; dropped blank
// rows leave gaps rather than renumbering what follows.
type NormalizedItem struct {
	RowIndex        int           `json:"rowIndex"`
	PartCode        string        `json:"partCode"`
	Description     string        `json:"description"`
	Qty             float64       `json:"qty"`
	QtyRead         *float64      `json:"qtyRead"`
	TotalQtyRead    *float64      `json:"totalQtyRead"`
	BlankXMM        *float64      `json:"blankXMm"`
	BlankYMM        *float64      `json:"blankYMm"`
	Process         string        `json:"process"`
	RawMaterial     string        `json:"rawMaterial"`
	RawMaterialCode *string       `json:"rawMaterialCode"`
	MaterialKind    MaterialKind  `json:"materialKind"`
	MaterialName    *MaterialName `json:"materialName"`
	ThicknessMM     *float64      `json:"thicknessMm"`
	Missing         []MissingCode `json:"missing"`
}

type OpNormalizationSummary struct {
	TotalRows         int `json:"totalRows"`
	ParsedItems       int `json:"parsedItems"`
	ItemsWithIssues   int `json:"itemsWithIssues"`
	ItemsWithXY       int `json:"itemsWithXy"`
	ItemsWithMaterial int `json:"itemsWithMaterial"`
}

type OpNormalizationResult struct {
	SheetName      string                 `json:"sheetName"`
	Header         HeaderMap              `json:"header"`
	HeaderRowIndex int                    `json:"headerRowIndex"`
	Items          []NormalizedItem       `json:"items"`
	Summary        OpNormalizationSummary `json:"summary"`
}

type ProcessCategory string

const (
	CategorySheet    ProcessCategory = "sheet"
	CategoryTube     ProcessCategory = "tube"
	CategoryPurchase ProcessCategory = "purchase"
	CategoryOther    ProcessCategory = "other"
)

type ProcessRule struct {
	ID         string          `json:"id,omitempty"`
	Pattern    string          `json:"pattern"`
	Category   ProcessCategory `json:"category"`
	Confidence float64         `json:"confidence,omitempty"`
	Priority   int             `json:"priority,omitempty"`
	Active     bool            `json:"active"`
}

type ProcessResolution struct {
	Category       ProcessCategory `json:"category"`
	Confidence     float64         `json:"confidence"`
	MatchedPattern *string         `json:"matchedPattern"`
}

// SheetSpec is one purchasable stock sheet from the catalog. Reference data
// supplied by the caller; never mutated by the pipeline.
type SheetSpec struct {
	ID                string       `json:"id"`
	MaterialName      MaterialName `json:"materialName"`
	ThicknessMM       float64      `json:"thicknessMm"`
	WidthMM           float64      `json:"widthMm"`
	HeightMM          float64      `json:"heightMm"`
	CostPerSheet      float64      `json:"costPerSheet"`
	DefaultScrap      float64      `json:"defaultScrap"`
	DefaultEfficiency float64      `json:"defaultEfficiency"`
}

// EstimationOverride carries user-supplied scrap/efficiency fractions that
// take precedence over a matched spec's defaults.
type EstimationOverride struct {
	Scrap      *float64 `json:"scrap"`
	Efficiency *float64 `json:"efficiency"`
}

type RouteDecision string

const (
	DecisionSheetArea        RouteDecision = "sheet_area"
	DecisionTubePending      RouteDecision = "tube_pending"
	DecisionPurchaseExcluded RouteDecision = "purchase_excluded"
	DecisionOtherExcluded    RouteDecision = "other_excluded"
	DecisionSheetMissingData RouteDecision = "sheet_missing_data"
)

type PendingCode string

const (
	PendingMissingXY               PendingCode = "missing_xy"
	PendingMissingMaterial         PendingCode = "missing_material"
	PendingMissingThickness        PendingCode = "missing_thickness"
	PendingMissingSheetSpec        PendingCode = "missing_sheet_spec"
	PendingProcessMaterialConflict PendingCode = "process_material_conflict"
	PendingTubeNotImplemented      PendingCode = "tube_not_implemented"
	PendingPurchaseItemNoCost      PendingCode = "purchase_item_no_cost"
	PendingInvalidQty              PendingCode = "invalid_qty"
)

type PendingIssue struct {
	Code     PendingCode `json:"code"`
	Message  string      `json:"message"`
	RowIndex *int        `json:"rowIndex,omitempty"`
	GroupKey *string     `json:"groupKey,omitempty"`
	Critical bool        `json:"critical"`
}

type ExcludedItem struct {
	Item   NormalizedItem `json:"item"`
	Reason string         `json:"reason"`
}

// ItemClassification is the per-item audit record the estimator emits for
// every line regardless of outcome.
type ItemClassification struct {
	RowIndex           int             `json:"rowIndex"`
	ProcessCategory    ProcessCategory `json:"processCategory"`
	ProcessConfidence  float64         `json:"processConfidence"`
	MaterialKind       MaterialKind    `json:"materialKind"`
	MaterialConfidence float64         `json:"materialConfidence"`
	FinalCategory      ProcessCategory `json:"finalCategory"`
	Decision           RouteDecision   `json:"decision"`
	Conflict           *string         `json:"conflict,omitempty"`
}

type EstimationGroup struct {
	Key             string       `json:"key"`
	MaterialName    MaterialName `json:"materialName"`
	ThicknessMM     float64      `json:"thicknessMm"`
	ItemCount       int          `json:"itemCount"`
	TotalQty        float64      `json:"totalQty"`
	TotalAreaMM2    float64      `json:"totalAreaMm2"`
	TotalAreaM2     float64      `json:"totalAreaM2"`
	SpecID          string       `json:"specId"`
	SheetWidthMM    float64      `json:"sheetWidthMm"`
	SheetHeightMM   float64      `json:"sheetHeightMm"`
	CostPerSheet    float64      `json:"costPerSheet"`
	Scrap           float64      `json:"scrap"`
	Efficiency      float64      `json:"efficiency"`
	EstimatedSheets int          `json:"estimatedSheets"`
	MaterialCost    float64      `json:"materialCost"`
}

type EstimationTotals struct {
	TotalAreaM2  float64 `json:"totalAreaM2"`
	TotalSheets  int     `json:"totalSheets"`
	MaterialCost float64 `json:"materialCost"`
}

type EstimationResult struct {
	Included        []NormalizedItem     `json:"included"`
	Excluded        []ExcludedItem       `json:"excluded"`
	Classifications []ItemClassification `json:"classifications"`
	Pending         []PendingIssue       `json:"pending"`
	Groups          []EstimationGroup    `json:"groups"`
	Totals          EstimationTotals     `json:"totals"`
	CanFinalize     bool                 `json:"canFinalize"`
}

// OpFileRow is one ingested production-order file in storage.
type OpFileRow struct {
	ID        int
	Path      string
	Filename  string
	SheetName string
	Hash      string
	Status    string
	CreatedAt string
}

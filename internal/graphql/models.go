package graphql

import "encoding/json"

// Objects and inputs of schema.graphqls. Fields are bound by their json
// tag, which must match the schema field name.

type Field struct {
	Name            string `json:"name"`
	Label           string `json:"label"`
	InputType       string `json:"inputType"`
	DefaultOperator string `json:"defaultOperator"`
	Source          string `json:"source"`
}

type Bucket struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

type Aggregation struct {
	Field    string    `json:"field"`
	Buckets  []*Bucket `json:"buckets"`
	Total    int       `json:"total"`
	Distinct int       `json:"distinct"`
}

type PivotCell struct {
	Row   string `json:"row"`
	Col   string `json:"col"`
	Count int    `json:"count"`
}

type PivotTable struct {
	RowField  string       `json:"rowField"`
	ColField  string       `json:"colField"`
	RowKeys   []string     `json:"rowKeys"`
	ColKeys   []string     `json:"colKeys"`
	Cells     []*PivotCell `json:"cells"`
	RowTotals []*Bucket    `json:"rowTotals"`
	ColTotals []*Bucket    `json:"colTotals"`
	Total     int          `json:"total"`
}

type GeoPoint struct {
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Count int     `json:"count"`
}

type AutocompleteValues struct {
	Field  string   `json:"field"`
	Values []string `json:"values"`
}

type DeriveRule struct {
	PropertyName string  `json:"propertyName"`
	Func         string  `json:"func"`
	Args         any     `json:"args"`
	JSONLogic    any     `json:"jsonLogic"`
	DisplayName  *string `json:"displayName"`
	Description  *string `json:"description"`
}

type CustomField struct {
	ID                  string  `json:"id"`
	IDName              string  `json:"idName"`
	DataType            string  `json:"dataType"`
	Label               string  `json:"label"`
	Description         *string `json:"description"`
	AIDescription       *string `json:"aiDescription"`
	AutocompleteEnabled bool    `json:"autocompleteEnabled"`
	IsDisabled          bool    `json:"isDisabled"`
	CreatedAt           string  `json:"createdAt"`
	UpdatedAt           string  `json:"updatedAt"`
}

type HistoryRecord struct {
	Index       int     `json:"index"`
	Date        string  `json:"date"`
	Type        string  `json:"type"`
	Description *string `json:"description"`
	APIQuery    *string `json:"apiQuery"`
	HasData     bool    `json:"hasData"`
}

type Entry struct {
	ID          string           `json:"id"`
	NCTID       string           `json:"nctId"`
	Title       string           `json:"title"`
	Description *string          `json:"description"`
	Notes       *string          `json:"notes"`
	CreatedAt   string           `json:"createdAt"`
	UpdatedAt   string           `json:"updatedAt"`
	RawJSON     map[string]any   `json:"rawJson"`
	History     []*HistoryRecord `json:"history"`
}

type ExportResult struct {
	ID          string `json:"id"`
	FileName    string `json:"fileName"`
	Format      string `json:"format"`
	MimeType    string `json:"mimeType"`
	Rows        int    `json:"rows"`
	ByteSize    int64  `json:"byteSize"`
	CreatedAt   string `json:"createdAt"`
	DownloadURL string `json:"downloadUrl"`
}

type AggregateInput struct {
	Field   string          `json:"field"`
	SubPath *string         `json:"subPath"`
	Where   json.RawMessage `json:"where"`
	Top     *int            `json:"top"`
	Filter  json.RawMessage `json:"filter"`
}

type CustomFieldInput struct {
	IDName              string  `json:"idName"`
	DataType            string  `json:"dataType"`
	Label               string  `json:"label"`
	Description         *string `json:"description"`
	AIDescription       *string `json:"aiDescription"`
	AutocompleteEnabled *bool   `json:"autocompleteEnabled"`
	IsDisabled          *bool   `json:"isDisabled"`
}

type ExportInput struct {
	Name      *string         `json:"name"`
	Format    *string         `json:"format"`
	Filter    json.RawMessage `json:"filter"`
	AllRows   *bool           `json:"allRows"`
	Columns   []string        `json:"columns"`
	PivotRows *string         `json:"pivotRows"`
	PivotCols *string         `json:"pivotCols"`
}

package catalog

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	cmerrors "github.com/Aman-CERP/catalogmatch/internal/errors"
)

// LoadFile reads catalog records from a .json, .yaml/.yml or .csv file.
// Column and key names are matched case-insensitively with underscores
// ignored, so "Product_ID", "product_id" and "productId" are the same field.
func LoadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, cmerrors.IOError(fmt.Sprintf("catalog file not found: %s", path), err)
		}
		return nil, cmerrors.New(cmerrors.ErrCodeFilePermission, fmt.Sprintf("cannot open catalog file: %s", path), err)
	}
	defer func() { _ = f.Close() }()

	var records []map[string]any
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		records, err = decodeJSON(f)
	case ".yaml", ".yml":
		records, err = decodeYAML(f)
	case ".csv":
		records, err = decodeCSV(f)
	default:
		return nil, cmerrors.ValidationError(fmt.Sprintf("unsupported catalog format %q (use .json, .yaml or .csv)", ext), nil)
	}
	if err != nil {
		return nil, cmerrors.New(cmerrors.ErrCodeInvalidCatalog, fmt.Sprintf("failed to parse catalog %s", path), err)
	}

	entries := make([]Entry, len(records))
	for i, rec := range records {
		entries[i] = entryFromRecord(rec)
	}
	return entries, nil
}

func decodeJSON(r io.Reader) ([]map[string]any, error) {
	var records []map[string]any
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, err
	}
	return records, nil
}

func decodeYAML(r io.Reader) ([]map[string]any, error) {
	var records []map[string]any
	if err := yaml.NewDecoder(r).Decode(&records); err != nil {
		return nil, err
	}
	return records, nil
}

func decodeCSV(r io.Reader) ([]map[string]any, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("missing header row: %w", err)
	}

	var records []map[string]any
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rec := make(map[string]any, len(header))
		for i, col := range header {
			if i < len(row) {
				rec[col] = row[i]
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// fieldAliases maps folded key names onto Entry fields.
var fieldAliases = map[string]string{
	"productid":          "product_id",
	"id":                 "product_id",
	"productname":        "product_name",
	"name":               "product_name",
	"category":           "category",
	"documenttext":       "document_text",
	"description":        "description",
	"productdescription": "description",
	"subcategory":        "sub_category",
	"brand":              "brand",
	"industryuse":        "industry_use",
	"formfactor":         "form_factor",
	"interface":          "interface",
	"interfacetype":      "interface",
	"lifecyclestatus":    "lifecycle_status",
	"status":             "lifecycle_status",
}

func foldKey(k string) string {
	return strings.ToLower(strings.NewReplacer("_", "", "-", "", " ", "").Replace(k))
}

func entryFromRecord(rec map[string]any) Entry {
	fields := make(map[string]string, len(rec))
	for k, v := range rec {
		if name, ok := fieldAliases[foldKey(k)]; ok {
			fields[name] = stringify(v)
		}
	}
	return Entry{
		ProductID:       fields["product_id"],
		ProductName:     fields["product_name"],
		Category:        fields["category"],
		DocumentText:    fields["document_text"],
		Description:     fields["description"],
		SubCategory:     fields["sub_category"],
		Brand:           fields["brand"],
		IndustryUse:     fields["industry_use"],
		FormFactor:      fields["form_factor"],
		Interface:       fields["interface"],
		LifecycleStatus: fields["lifecycle_status"],
	}
}

// stringify renders scalar record values. Numeric IDs such as 1001 must
// not become "1001.0" or "1e+03".
func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

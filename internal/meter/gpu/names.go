package gpu

import (
	"fmt"
	"strings"

	"horizonx-meter/pkg"
)

var vendorNames = map[uint16]string{
	VendorAMD:    "AMD",
	VendorNVIDIA: "NVIDIA",
	VendorIntel:  "Intel",
}

// vendorShortName maps a vendor to the name shown to users, falling back
// to the database entry for vendors outside the table.
func vendorShortName(id uint16, dbName string) string {
	if name, ok := vendorNames[id]; ok {
		return name
	}
	if pkg.ContainsAny(dbName, []string{"advanced micro devices", "amd/ati"}) {
		return "AMD"
	}
	if dbName != "" {
		return dbName
	}
	return fmt.Sprintf("Vendor %04x", id)
}

// modelName reduces a database device string to its product name. The
// bracketed part, when present, is the marketing name: "GA104 [GeForce
// RTX 3070]" becomes "GeForce RTX 3070". A leading vendor name is dropped
// because it is shown separately.
func modelName(raw, vendor string) string {
	model := strings.TrimSpace(raw)
	if open := strings.IndexByte(model, '['); open >= 0 {
		if end := strings.LastIndexByte(model, ']'); end > open {
			model = strings.TrimSpace(model[open+1 : end])
		}
	}
	return stripVendor(model, vendor)
}

func stripVendor(model, vendor string) string {
	if vendor == "" {
		return model
	}
	if pkg.ContainsAny(model, []string{vendor + " *"}) {
		return strings.TrimSpace(pkg.TrimPrefixFold(model, vendor+" "))
	}
	return model
}

// ambiguous reports whether a model lists several products, as in
// "Radeon RX 7900 XT/7900 XTX/7900 GRE/7900M".
func ambiguous(model string) bool {
	return strings.Contains(model, "/")
}

package domain

import "strings"

// BarcodeLength is the fixed length of a cylinder barcode.
const BarcodeLength = 9

// ValidateBarcode checks that barcode is a 9 character numeric string.
func ValidateBarcode(barcode string) error {
	if len(barcode) != BarcodeLength {
		return ValidationError{Field: "barcode", Message: "must be exactly 9 digits"}
	}
	for _, r := range barcode {
		if r < '0' || r > '9' {
			return ValidationError{Field: "barcode", Message: "must be numeric"}
		}
	}
	return nil
}

// NormalizeIdentifier trims scanner noise from a scanned identifier.
func NormalizeIdentifier(identifier string) string {
	return strings.TrimSpace(identifier)
}

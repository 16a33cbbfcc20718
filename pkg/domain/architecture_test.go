package domain

import (
	"testing"

	"cylindercore/testutil"
)

// TestDomainDoesNotImportInternal keeps the domain layer free of any internal
// implementation package.
func TestDomainDoesNotImportInternal(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InternalImportForbidden, "pkg/domain must stay independent of /internal/")
}

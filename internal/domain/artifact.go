package domain

import (
	"fmt"
	"path/filepath"
)

const (
	// ArtifactPrefix is the source tag at the start of every artifact name.
	ArtifactPrefix = "openmeteo"
	// ArtifactExt is the artifact file extension, matching the archive's csv format.
	ArtifactExt = "csv"
	// TempPrefix marks in-flight writes that have not been renamed into place.
	TempPrefix = ".tmp-"
)

// ArtifactName returns the deterministic file name for a station's period.
func ArtifactName(originalID string, p Period) string {
	return fmt.Sprintf("%s_%s_%d.%s", ArtifactPrefix, originalID, int(p), ArtifactExt)
}

// ArtifactDir returns the per-period sub-directory under base.
func ArtifactDir(base string, p Period) string {
	return filepath.Join(base, p.String())
}

// ArtifactPath returns the full artifact path for a station's period under base.
func ArtifactPath(base string, s Station, p Period) string {
	return filepath.Join(ArtifactDir(base, p), ArtifactName(s.OriginalID, p))
}

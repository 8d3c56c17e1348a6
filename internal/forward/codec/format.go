// Package codec defines the on-disk layout of a field's forward index: the
// file roles, their header codec names and versions, and the flagged object
// record each token is stored as.
package codec

import (
	"fmt"
	"path/filepath"
	"regexp"

	apperrors "github.com/Adithya-Monish-Kumar-K/forward-index/pkg/errors"
)

const (
	VersionStart   = 1
	VersionCurrent = 1
)

// FileRole names one file of a field's forward index.
type FileRole struct {
	Ext   string
	Codec string
}

var (
	RoleObject       = FileRole{"fobj", "ForwardObject"}
	RoleTerm         = FileRole{"fterm", "ForwardTerm"}
	RolePrefix       = FileRole{"fprefix", "ForwardPrefix"}
	RoleDoc          = FileRole{"fdoc", "ForwardDoc"}
	RoleDocID        = FileRole{"fdocid", "ForwardDocId"}
	RoleObjectID     = FileRole{"fid", "ForwardObjectId"}
	RolePositionTree = FileRole{"fpos", "ForwardPositionTree"}
	RoleParentTree   = FileRole{"fparent", "ForwardParentTree"}
	RoleField        = FileRole{"ffield", "ForwardField"}

	// Temporary files of a build; never referenced by a committed header.
	RoleTmpObject   = FileRole{"tmp.obj", "ForwardTmpObject"}
	RoleTmpFragment = FileRole{"tmp.frag", "ForwardTmpFragment"}
	RoleTmpChained  = FileRole{"tmp.chain", "ForwardTmpChained"}
)

// SealedRoles lists the files a committed field consists of, header last.
var SealedRoles = []FileRole{
	RoleObject, RoleTerm, RolePrefix, RoleDoc, RoleDocID,
	RoleObjectID, RolePositionTree, RoleParentTree, RoleField,
}

var TempRoles = []FileRole{RoleTmpObject, RoleTmpFragment, RoleTmpChained}

var fieldName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateField rejects field names that cannot be used in file names.
func ValidateField(field string) error {
	if !fieldName.MatchString(field) {
		return fmt.Errorf("%w: field name %q", apperrors.ErrInvalidInput, field)
	}
	return nil
}

// Path returns the location of a field's file for role inside dir.
func Path(dir, field string, role FileRole) string {
	return filepath.Join(dir, field+"."+role.Ext)
}

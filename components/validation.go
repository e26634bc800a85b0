package components

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/YuminosukeSato/mlproject/configuration"
	"github.com/YuminosukeSato/mlproject/dataset"
	"github.com/YuminosukeSato/mlproject/pkg/errors"
	"github.com/YuminosukeSato/mlproject/pkg/log"
)

// StatusPrefix starts every line written to the validation status file.
const StatusPrefix = "Validation status:"

// FormatStatus renders the status file content for ok.
func FormatStatus(ok bool) string {
	if ok {
		return StatusPrefix + " True"
	}
	return StatusPrefix + " False"
}

// ReadStatus reports whether the status file at path ends in the token "True".
// The comparison is exact, so "true" or a trailing newline counts as invalid.
func ReadStatus(fs billy.Filesystem, path string) (bool, error) {
	raw, err := util.ReadFile(fs, path)
	if err != nil {
		return false, errors.Wrapf(err, "failed to read validation status %s", path)
	}
	fields := strings.Split(string(raw), " ")
	return fields[len(fields)-1] == "True", nil
}

// DataValidation checks the extracted CSV's columns against the schema.
type DataValidation struct {
	fs       billy.Filesystem
	settings configuration.ValidationSettings
	logger   log.Logger
}

// NewDataValidation creates the validation stage.
func NewDataValidation(fs billy.Filesystem, settings configuration.ValidationSettings, logger log.Logger) *DataValidation {
	return &DataValidation{
		fs:       fs,
		settings: settings,
		logger:   logger.With(log.StageKey, "data_validation", log.OperationKey, log.OperationValidate),
	}
}

// ValidateAllColumns walks the data columns in header order and rewrites the
// status file after each one.
//
// Under PolicyLastColumn the result is the membership of the final column, so
// a mismatch earlier in the header is overwritten by a later match. Under
// PolicyAllColumns any mismatch makes the result False. Schema columns missing
// from the data are not checked. A file with no header writes False and
// returns an error wrapping errors.ErrEmptyData.
func (v *DataValidation) ValidateAllColumns() (bool, error) {
	columns, err := dataset.ReadHeader(v.fs, v.settings.DataPath)
	if err != nil {
		return false, err
	}

	if err := v.fs.MkdirAll(filepath.Dir(v.settings.StatusFile), 0o755); err != nil {
		return false, errors.Wrapf(err, "failed to create directory for %s", v.settings.StatusFile)
	}

	if len(columns) == 0 {
		// 前回の True が残っているとゲートが開いたままになる
		if err := util.WriteFile(v.fs, v.settings.StatusFile, []byte(FormatStatus(false)), 0o644); err != nil {
			return false, errors.Wrapf(err, "failed to write %s", v.settings.StatusFile)
		}
		return false, errors.Wrapf(errors.ErrEmptyData, "%s has no header", v.settings.DataPath)
	}

	status := true
	for _, col := range columns {
		_, known := v.settings.Schema[col]
		switch v.settings.Policy {
		case configuration.PolicyAllColumns:
			status = status && known
		default:
			status = known
		}
		if !known {
			v.logger.Warn("column not in schema", log.ColumnKey, col)
		}

		if err := util.WriteFile(v.fs, v.settings.StatusFile, []byte(FormatStatus(status)), 0o644); err != nil {
			return false, errors.Wrapf(err, "failed to write %s", v.settings.StatusFile)
		}
	}

	v.logger.Info(fmt.Sprintf("Validation finished with %d columns", len(columns)),
		log.ValidationStatusKey, status,
		"validation.policy", string(v.settings.Policy),
		log.ArtifactPathKey, v.settings.StatusFile,
	)
	return status, nil
}

package derive

import (
	"github.com/rpattn/trialnotes/internal/domain"
	"github.com/rpattn/trialnotes/pkg/jsonlogic"
)

// DefaultRules returns the rule set seeded for a new workspace. The paths
// follow the ClinicalTrials.gov protocol section stored in rawJson.
func DefaultRules() []domain.DeriveRule {
	rule := func(property, fn, path string, args map[string]any) domain.DeriveRule {
		if args == nil {
			args = map[string]any{}
		}
		return domain.DeriveRule{PropertyName: property, Func: fn, Args: args, JSONLogic: jsonlogic.Var(path)}
	}
	return []domain.DeriveRule{
		rule("sex", FuncGet, "rawJson.eligibilityModule.sex", nil),
		rule("first_phase", FuncGetFirst, "rawJson.designModule.phases", nil),
		rule("design_oberservation_model", FuncGet, "rawJson.designModule.designInfo.observationalModel", nil),
		rule("design_masking", FuncGet, "rawJson.designModule.designInfo.maskingInfo.masking", nil),
		rule("design_intervention_model", FuncGet, "rawJson.designModule.designInfo.interventionModel", nil),
		rule("design_allocation", FuncGet, "rawJson.designModule.designInfo.allocation", nil),
		rule("first_mesh_term", FuncGetFirst, "rawJson.interventionBrowseModule.meshes", map[string]any{"subPath": "term"}),
		rule("description", FuncGet, "rawJson.descriptionModule.briefSummary", nil),
		rule("study_first_post", FuncFormatDate, "rawJson.statusModule.studyFirstPostDateStruct.date", map[string]any{"format": "YYYY"}),
		rule("study_start_date", FuncFormatDate, "rawJson.statusModule.startDateStruct.date", map[string]any{"format": "YYYY"}),
		rule("first_drug_name", FuncSplitFirst, "drug_name", map[string]any{"delimiter": "|"}),
		rule("status", FuncGet, "rawJson.statusModule.overallStatus", nil),
		rule("age", FuncGet, "rawJson.eligibilityModule.stdAges", nil),
	}
}

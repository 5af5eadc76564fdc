package cli

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanderhaka/jarve-agency-sub002/internal/domain"
	"github.com/vanderhaka/jarve-agency-sub002/internal/store"
	"github.com/vanderhaka/jarve-agency-sub002/internal/testutil"
)

func seedLead(t *testing.T, dbPath string, lead domain.Lead) {
	t.Helper()
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	lead.CreatedAt = testutil.Epoch
	require.NoError(t, st.CreateLead(context.Background(), lead))
}

func loadLead(t *testing.T, dbPath, id string) domain.Lead {
	t.Helper()
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	lead, err := st.GetLead(context.Background(), id)
	require.NoError(t, err)
	return lead
}

func TestConvert_MissingLeadID(t *testing.T) {
	_, err := execute(t, "convert")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestConvert_Text(t *testing.T) {
	cfgPath, dbPath := writeConfig(t, "")
	seedLead(t, dbPath, domain.Lead{ID: "lead-1", Name: "Dana Reyes", Email: "Dana@Example.com"})

	out, err := execute(t, "--config", cfgPath, "convert", "lead-1", "--project-name", "Website rebuild", "--employee", "emp-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Lead lead-1 converted to new client")
	assert.Contains(t, out, "Project: ")

	lead := loadLead(t, dbPath, "lead-1")
	assert.Equal(t, domain.LeadConverted, lead.Status)
	assert.True(t, lead.ClientID.IsSet())
	assert.True(t, lead.ProjectID.IsSet())
}

func TestConvert_JSON(t *testing.T) {
	cfgPath, dbPath := writeConfig(t, "")
	seedLead(t, dbPath, domain.Lead{ID: "lead-1", Name: "Dana Reyes", Email: "dana@example.com"})

	out, err := execute(t, "--config", cfgPath, "--format", "json", "convert", "lead-1")
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			ClientID       string `json:"client_id"`
			ProjectID      string `json:"project_id"`
			LinkedExisting bool   `json:"linked_existing"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, resp.Data.ClientID)
	assert.NotEmpty(t, resp.Data.ProjectID)
	assert.False(t, resp.Data.LinkedExisting)

	lead := loadLead(t, dbPath, "lead-1")
	assert.Equal(t, resp.Data.ClientID, lead.ClientID.String())
	assert.Equal(t, resp.Data.ProjectID, lead.ProjectID.String())
}

func TestConvert_Refusals(t *testing.T) {
	tests := []struct {
		name     string
		lead     *domain.Lead
		leadID   string
		wantCode string
	}{
		{
			name:     "unknown_lead",
			leadID:   "lead-404",
			wantCode: "NOT_FOUND",
		},
		{
			name:     "missing_email",
			lead:     &domain.Lead{ID: "lead-2", Name: "No Email"},
			leadID:   "lead-2",
			wantCode: "VALIDATION",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfgPath, dbPath := writeConfig(t, "")
			if tt.lead != nil {
				seedLead(t, dbPath, *tt.lead)
			}

			out, err := execute(t, "--config", cfgPath, "--format", "json", "convert", tt.leadID)
			require.Error(t, err)
			assert.Equal(t, ExitFailure, GetExitCode(err))

			var resp CLIResponse
			require.NoError(t, json.Unmarshal([]byte(out), &resp))
			assert.Equal(t, "error", resp.Status)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestConvert_AlreadyConverted(t *testing.T) {
	cfgPath, dbPath := writeConfig(t, "")
	seedLead(t, dbPath, domain.Lead{ID: "lead-1", Name: "Dana Reyes", Email: "dana@example.com"})

	_, err := execute(t, "--config", cfgPath, "convert", "lead-1")
	require.NoError(t, err)

	out, err := execute(t, "--config", cfgPath, "convert", "lead-1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [PRECONDITION]: lead already converted")
}

func TestConvert_RequireSignedProposal(t *testing.T) {
	cfgPath, dbPath := writeConfig(t, "conversion:\n  require_signed_proposal: true\n")
	seedLead(t, dbPath, domain.Lead{ID: "lead-1", Name: "Dana Reyes", Email: "dana@example.com"})

	out, err := execute(t, "--config", cfgPath, "convert", "lead-1")
	require.Error(t, err)
	assert.Contains(t, out, "signed proposal required")
	assert.Equal(t, domain.LeadNew, loadLead(t, dbPath, "lead-1").Status)
}

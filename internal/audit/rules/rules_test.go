package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schooladmin/pkg/platform/audit/classifier"
)

func TestDefaultTableIsValid(t *testing.T) {
	c, err := classifier.New(Default())
	require.NoError(t, err)
	assert.Equal(t, len(defaultRules), c.Len())
}

func TestDefaultReturnsCopy(t *testing.T) {
	a := Default()
	a[0].Action = "tampered"
	assert.NotEqual(t, "tampered", Default()[0].Action)
}

func TestDefaultClassification(t *testing.T) {
	c := classifier.MustNew(Default())
	const oid = "65a1f0c2e4b0a1b2c3d4e5f6"

	tests := []struct {
		method, path     string
		action, resource string
	}{
		{"POST", "/auth/login", "login", "Auth"},
		{"POST", "/students", "create_student", "Student"},
		{"PUT", "/students/" + oid, "update_student", "Student"},
		{"DELETE", "/students/" + oid, "delete_student", "Student"},
		{"POST", "/students/import", "import_students", "Student"},
		{"PATCH", "/users/" + oid + "/role", "change_user_role", "User"},
		{"PUT", "/expenses/" + oid + "/approve", "approve_expense", "Expense"},
		{"DELETE", "/audit-logs/old?days=365", "purge_audit_logs", "AuditLog"},
		{"DELETE", "/audit-logs/550e8400-e29b-41d4-a716-446655440000", "delete_audit_log", "AuditLog"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			m, ok := c.Classify(tt.method, tt.path)
			require.True(t, ok)
			assert.Equal(t, tt.action, m.Action)
			assert.Equal(t, tt.resource, m.Resource)
		})
	}

	for _, path := range []string{"/students", "/audit-logs", "/audit-logs/stats", "/grades"} {
		_, ok := c.Classify("GET", path)
		assert.False(t, ok, "GET %s should not be audited", path)
	}
}

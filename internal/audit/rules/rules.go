// Package rules holds the default audit rule table for the school
// administration API. Deployments may replace it through the audit.rules
// configuration list.
package rules

import "schooladmin/pkg/platform/audit/classifier"

// Default returns a fresh copy of the built-in rule table.
func Default() []classifier.Rule {
	out := make([]classifier.Rule, len(defaultRules))
	copy(out, defaultRules)
	return out
}

var defaultRules = []classifier.Rule{
	// sign-in and account management
	{Method: "POST", Path: "/auth/login", Action: "login", Resource: "Auth"},
	{Method: "POST", Path: "/auth/logout", Action: "logout", Resource: "Auth"},
	{Method: "POST", Path: "/auth/password/reset", Action: "reset_password", Resource: "Auth"},
	{Method: "POST", Path: "/users", Action: "create_user", Resource: "User"},
	{Method: "PUT", Path: "/users", Action: "update_user", Resource: "User"},
	{Method: "PATCH", Path: "/users/role", Action: "change_user_role", Resource: "User"},
	{Method: "DELETE", Path: "/users", Action: "delete_user", Resource: "User"},

	// students and staff
	{Method: "POST", Path: "/students", Action: "create_student", Resource: "Student"},
	{Method: "PUT", Path: "/students", Action: "update_student", Resource: "Student"},
	{Method: "PATCH", Path: "/students", Action: "update_student", Resource: "Student"},
	{Method: "DELETE", Path: "/students", Action: "delete_student", Resource: "Student"},
	{Method: "POST", Path: "/students/import", Action: "import_students", Resource: "Student"},
	{Method: "GET", Path: "/students/export", Action: "export_students", Resource: "Student"},
	{Method: "POST", Path: "/teachers", Action: "create_teacher", Resource: "Teacher"},
	{Method: "PUT", Path: "/teachers", Action: "update_teacher", Resource: "Teacher"},
	{Method: "DELETE", Path: "/teachers", Action: "delete_teacher", Resource: "Teacher"},

	// academics
	{Method: "POST", Path: "/grades", Action: "create_grade", Resource: "Grade"},
	{Method: "PUT", Path: "/grades", Action: "update_grade", Resource: "Grade"},
	{Method: "DELETE", Path: "/grades", Action: "delete_grade", Resource: "Grade"},
	{Method: "POST", Path: "/schedules", Action: "create_schedule", Resource: "Schedule"},
	{Method: "PUT", Path: "/schedules", Action: "update_schedule", Resource: "Schedule"},
	{Method: "DELETE", Path: "/schedules", Action: "delete_schedule", Resource: "Schedule"},

	// finance
	{Method: "POST", Path: "/invoices", Action: "create_invoice", Resource: "Invoice"},
	{Method: "PUT", Path: "/invoices", Action: "update_invoice", Resource: "Invoice"},
	{Method: "DELETE", Path: "/invoices", Action: "delete_invoice", Resource: "Invoice"},
	{Method: "POST", Path: "/invoices/payments", Action: "record_payment", Resource: "Invoice"},
	{Method: "POST", Path: "/expenses", Action: "create_expense", Resource: "Expense"},
	{Method: "PUT", Path: "/expenses", Action: "update_expense", Resource: "Expense"},
	{Method: "PUT", Path: "/expenses/approve", Action: "approve_expense", Resource: "Expense"},
	{Method: "PUT", Path: "/expenses/reject", Action: "reject_expense", Resource: "Expense"},
	{Method: "DELETE", Path: "/expenses", Action: "delete_expense", Resource: "Expense"},
	{Method: "POST", Path: "/loans", Action: "create_loan", Resource: "Loan"},
	{Method: "PUT", Path: "/loans", Action: "update_loan", Resource: "Loan"},
	{Method: "PUT", Path: "/loans/return", Action: "return_loan", Resource: "Loan"},
	{Method: "DELETE", Path: "/loans", Action: "delete_loan", Resource: "Loan"},

	// communication and settings
	{Method: "POST", Path: "/messages", Action: "send_message", Resource: "Message"},
	{Method: "DELETE", Path: "/messages", Action: "delete_message", Resource: "Message"},
	{Method: "PUT", Path: "/settings", Action: "update_settings", Resource: "Settings"},

	// the audit trail itself
	{Method: "DELETE", Path: "/audit-logs/old", Action: "purge_audit_logs", Resource: "AuditLog"},
	{Method: "DELETE", Path: "/audit-logs", Action: "delete_audit_log", Resource: "AuditLog"},
}

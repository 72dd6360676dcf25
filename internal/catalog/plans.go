package catalog

// Feature names referenced by the product. Handlers and domain modules use
// these constants; free-form strings fail the catalog lookup in tests.
const (
	// crm
	FeatureContacts          Feature = "contacts"
	FeatureDeals             Feature = "deals"
	FeatureBulkEmail         Feature = "bulk_email"
	FeatureCustomFields      Feature = "custom_fields"
	FeaturePipelineAnalytics Feature = "pipeline_analytics"

	// invoice
	FeatureInvoices          Feature = "invoices"
	FeatureRecurringInvoices Feature = "recurring_invoices"
	FeaturePaymentReminders  Feature = "payment_reminders"
	FeaturePDFBranding       Feature = "pdf_branding"

	// projects
	FeatureProjects     Feature = "projects"
	FeatureTimeTracking Feature = "time_tracking"
	FeatureGanttView    Feature = "gantt_view"

	// tickets
	FeatureTickets             Feature = "tickets"
	FeatureSLAPolicies         Feature = "sla_policies"
	FeatureSatisfactionReports Feature = "satisfaction_reports"

	// hr
	FeatureEmployees      Feature = "employees"
	FeatureLeaveApprovals Feature = "leave_approvals"
	FeaturePayrollExport  Feature = "payroll_export"

	// docs
	FeatureDocuments      Feature = "documents"
	FeatureVersionHistory Feature = "version_history"
	FeatureESignatures    Feature = "esignatures"

	// analytics
	FeatureDashboards       Feature = "dashboards"
	FeatureStatsDetail      Feature = "stats_detail"
	FeatureDataExport       Feature = "data_export"
	FeatureScheduledReports Feature = "scheduled_reports"
)

var allTiers = []PlanTier{PlanFree, PlanPro, PlanEnterprise}

var allModules = []Module{
	ModuleCRM,
	ModuleInvoice,
	ModuleProjects,
	ModuleTickets,
	ModuleHR,
	ModuleDocs,
	ModuleAnalytics,
}

type featureSpec struct {
	feature    Feature
	free       FeatureLimit
	pro        FeatureLimit
	enterprise FeatureLimit
}

// planTable is the single source of truth for plan entitlements. Every
// (tier, module, feature) the product references must have a row here;
// catalog tests enumerate the table to keep it total.
var planTable = map[Module][]featureSpec{
	ModuleCRM: {
		{FeatureContacts, QuotaLimit(100), QuotaLimit(10_000), QuotaLimit(Unlimited)},
		{FeatureDeals, QuotaLimit(50), QuotaLimit(5_000), QuotaLimit(Unlimited)},
		{FeatureBulkEmail, CapabilityLimit(false), CapabilityLimit(true), CapabilityLimit(true)},
		{FeatureCustomFields, CapabilityLimit(false), CapabilityLimit(true), CapabilityLimit(true)},
		{FeaturePipelineAnalytics, DegradeLimit(true), DegradeLimit(false), DegradeLimit(false)},
	},
	ModuleInvoice: {
		{FeatureInvoices, QuotaLimit(10), QuotaLimit(500), QuotaLimit(Unlimited)},
		{FeatureRecurringInvoices, CapabilityLimit(false), CapabilityLimit(true), CapabilityLimit(true)},
		{FeaturePaymentReminders, CapabilityLimit(false), CapabilityLimit(true), CapabilityLimit(true)},
		// Free-tier PDFs carry the product watermark.
		{FeaturePDFBranding, DegradeLimit(true), DegradeLimit(false), DegradeLimit(false)},
	},
	ModuleProjects: {
		{FeatureProjects, QuotaLimit(3), QuotaLimit(100), QuotaLimit(Unlimited)},
		{FeatureTimeTracking, CapabilityLimit(false), CapabilityLimit(true), CapabilityLimit(true)},
		{FeatureGanttView, DegradeLimit(true), DegradeLimit(false), DegradeLimit(false)},
	},
	ModuleTickets: {
		{FeatureTickets, QuotaLimit(50), QuotaLimit(5_000), QuotaLimit(Unlimited)},
		{FeatureSLAPolicies, CapabilityLimit(false), CapabilityLimit(true), CapabilityLimit(true)},
		{FeatureSatisfactionReports, DegradeLimit(true), DegradeLimit(false), DegradeLimit(false)},
	},
	ModuleHR: {
		{FeatureEmployees, QuotaLimit(5), QuotaLimit(250), QuotaLimit(Unlimited)},
		{FeatureLeaveApprovals, CapabilityLimit(false), CapabilityLimit(true), CapabilityLimit(true)},
		{FeaturePayrollExport, CapabilityLimit(false), CapabilityLimit(false), CapabilityLimit(true)},
	},
	ModuleDocs: {
		{FeatureDocuments, QuotaLimit(20), QuotaLimit(1_000), QuotaLimit(Unlimited)},
		{FeatureVersionHistory, CapabilityLimit(false), CapabilityLimit(true), CapabilityLimit(true)},
		{FeatureESignatures, CapabilityLimit(false), CapabilityLimit(true), CapabilityLimit(true)},
	},
	ModuleAnalytics: {
		{FeatureDashboards, QuotaLimit(1), QuotaLimit(10), QuotaLimit(Unlimited)},
		// Statistics render blurred on the free tier.
		{FeatureStatsDetail, DegradeLimit(true), DegradeLimit(false), DegradeLimit(false)},
		{FeatureDataExport, CapabilityLimit(false), CapabilityLimit(true), CapabilityLimit(true)},
		{FeatureScheduledReports, CapabilityLimit(false), CapabilityLimit(false), CapabilityLimit(true)},
	},
}

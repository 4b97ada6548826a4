// Package screens holds the static module catalog, the route table built
// from it and the handlers that describe each screen to the dashboard.
package screens

// Module is a capability area of the application.
type Module struct {
	Slug  string `json:"slug"`
	Title string `json:"title"`
	Group string `json:"group"`
}

const (
	GroupPurchases = "purchases"
	GroupSales     = "sales"
	GroupInward    = "inward"
	GroupOutward   = "outward"
	GroupPayroll   = "payroll"
	GroupFinance   = "finance"
	GroupStaff     = "staff"
)

// StaffDirectory is the module guarding the staff list API.
const StaffDirectory = "staff-directory"

// Modules is the module catalog. It is defined by the application and
// shared by every mill.
var Modules = []Module{
	{Slug: "paddy-purchase-report", Title: "Paddy Purchases", Group: GroupPurchases},
	{Slug: "rice-purchase-report", Title: "Rice Purchases", Group: GroupPurchases},
	{Slug: "gunny-purchase-report", Title: "Gunny Purchases", Group: GroupPurchases},
	{Slug: "other-purchase-report", Title: "Other Purchases", Group: GroupPurchases},

	{Slug: "rice-sales-report", Title: "Rice Sales", Group: GroupSales},
	{Slug: "paddy-sales-report", Title: "Paddy Sales", Group: GroupSales},
	{Slug: "broken-rice-sales-report", Title: "Broken Rice Sales", Group: GroupSales},
	{Slug: "husk-sales-report", Title: "Husk Sales", Group: GroupSales},
	{Slug: "bran-sales-report", Title: "Bran Sales", Group: GroupSales},

	{Slug: "paddy-inward-report", Title: "Paddy Inward", Group: GroupInward},
	{Slug: "gunny-inward-report", Title: "Gunny Inward", Group: GroupInward},

	{Slug: "rice-outward-report", Title: "Rice Outward", Group: GroupOutward},
	{Slug: "by-product-outward-report", Title: "By-product Outward", Group: GroupOutward},

	{Slug: "attendance-report", Title: "Attendance", Group: GroupPayroll},
	{Slug: "salary-payment-report", Title: "Salary Payments", Group: GroupPayroll},

	{Slug: "financial-payment-report", Title: "Payments", Group: GroupFinance},
	{Slug: "financial-receipt-report", Title: "Receipts", Group: GroupFinance},
	{Slug: "bank-transaction-report", Title: "Bank Transactions", Group: GroupFinance},

	{Slug: StaffDirectory, Title: "Staff Directory", Group: GroupStaff},
}

// ModuleBySlug looks a module up in the catalog.
func ModuleBySlug(slug string) (Module, bool) {
	for _, m := range Modules {
		if m.Slug == slug {
			return m, true
		}
	}
	return Module{}, false
}

// KnownModule reports whether slug is in the catalog.
func KnownModule(slug string) bool {
	_, ok := ModuleBySlug(slug)
	return ok
}

package classifier

// DocumentsKeywords are matched against queries about the commercial and
// technical documents: Agreement, Letter of Acceptance, Addendums, Bill of
// Quantities and Schedules.
var DocumentsKeywords = []string{
	"price",
	"pricing",
	"payment",
	"cost",
	"amount",
	"rate",
	"boq",
	"bill of quantities",
	"quantity",
	"schedule",
	"milestone",
	"programme",
	"deliverable",
	"letter of acceptance",
	"acceptance",
	"agreement",
	"contract sum",
	"contract price",
	"accepted contract amount",
	"addendum",
	"scope",
	"specification",
	"drawing",
	"item",
	"currency",
	"retention",
	"advance",
	"tender",
}

// ConditionsKeywords are matched against queries about the General and
// Particular Conditions of Contract.
var ConditionsKeywords = []string{
	"clause",
	"sub-clause",
	"condition",
	"general conditions",
	"particular conditions",
	"fidic",
	"liability",
	"liable",
	"indemnity",
	"insurance",
	"notice",
	"time-bar",
	"time bar",
	"claim",
	"variation",
	"termination",
	"terminate",
	"suspension",
	"dispute",
	"arbitration",
	"engineer",
	"employer",
	"contractor's obligations",
	"delay",
	"extension of time",
	"defects",
	"force majeure",
	"exceptional event",
	"damages",
	"obligation",
	"precedence",
	"override",
}

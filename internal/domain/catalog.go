package domain

// ProjectType is the kind of flooring job a customer asks a quote for.
type ProjectType string

const (
	ProjectHardwood    ProjectType = "madeira"
	ProjectFinishing   ProjectType = "acabamento"
	ProjectLaminate    ProjectType = "laminado"
	ProjectVinyl       ProjectType = "vinílico"
	ProjectRefinishing ProjectType = "reacabamentoing"
	ProjectRepair      ProjectType = "reparo"
	ProjectMultiple    ProjectType = "multiple"
)

var ProjectTypes = []ProjectType{
	ProjectHardwood,
	ProjectFinishing,
	ProjectLaminate,
	ProjectVinyl,
	ProjectRefinishing,
	ProjectRepair,
	ProjectMultiple,
}

// Timeline is when the customer wants the work done.
type Timeline string

const (
	TimelineASAP     Timeline = "asap"
	TimelineTwoWeeks Timeline = "1-2weeks"
	TimelineOneMonth Timeline = "1month"
	TimelineQuarter  Timeline = "2-3months"
	TimelinePlanning Timeline = "planning"
)

var Timelines = []Timeline{
	TimelineASAP,
	TimelineTwoWeeks,
	TimelineOneMonth,
	TimelineQuarter,
	TimelinePlanning,
}

// Budget is the customer's budget bracket in BRL.
type Budget string

const (
	BudgetUnder15k  Budget = "under15k"
	Budget15kTo30k  Budget = "15k-30k"
	Budget30kTo60k  Budget = "30k-60k"
	Budget60kTo150k Budget = "60k-150k"
	BudgetOver150k  Budget = "over150k"
)

var Budgets = []Budget{
	BudgetUnder15k,
	Budget15kTo30k,
	Budget30kTo60k,
	Budget60kTo150k,
	BudgetOver150k,
}

// MenuAction is a reply id emitted by the main menu buttons.
type MenuAction string

const (
	ActionRequestQuote  MenuAction = "request_quote"
	ActionViewServices  MenuAction = "view_services"
	ActionViewPortfolio MenuAction = "view_portfolio"
	ActionTalkHuman     MenuAction = "talk_human"
	ActionFAQ           MenuAction = "faq"
)

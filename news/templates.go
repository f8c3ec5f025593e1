package news

// Scope is who a news item targets.
type Scope string

const (
	Company Scope = "company"
	Sector  Scope = "sector"
	Market  Scope = "market"
)

// Template is a headline pattern with a fixed sentiment impact. Text may use
// {company}, {symbol} and {sector}.
type Template struct {
	Text   string
	Impact float64
}

type templateKey struct {
	scope    Scope
	positive bool
}

var templates = map[templateKey][]Template{
	{Company, true}: {
		{"{company} beats quarterly earnings expectations", 0.25},
		{"{company} announces record-breaking product launch", 0.20},
		{"{company} raises full-year guidance", 0.18},
		{"Analysts upgrade {symbol} to strong buy", 0.15},
		{"{company} unveils major share buyback program", 0.12},
	},
	{Company, false}: {
		{"{company} misses earnings estimates", -0.25},
		{"{company} faces regulatory investigation", -0.22},
		{"{company} CEO unexpectedly resigns", -0.18},
		{"Analysts downgrade {symbol} citing weak demand", -0.15},
		{"{company} recalls flagship product", -0.12},
	},
	{Sector, true}: {
		{"{sector} stocks rally on strong demand outlook", 0.12},
		{"New government incentives boost the {sector} sector", 0.10},
		{"Investors rotate into {sector} names", 0.08},
	},
	{Sector, false}: {
		{"{sector} stocks slide on tightening regulation", -0.12},
		{"Supply chain disruptions hit the {sector} sector", -0.10},
		{"Investors pull money from {sector} funds", -0.08},
	},
	{Market, true}: {
		{"Central bank signals interest rate cuts", 0.10},
		{"Strong jobs report lifts the broader market", 0.08},
		{"Inflation cools more than expected", 0.07},
	},
	{Market, false}: {
		{"Central bank hints at further rate hikes", -0.10},
		{"Recession fears weigh on global markets", -0.08},
		{"Geopolitical tensions rattle investors", -0.07},
	},
}

// Templates returns the headline table for a scope and polarity.
func Templates(scope Scope, positive bool) []Template {
	return templates[templateKey{scope, positive}]
}

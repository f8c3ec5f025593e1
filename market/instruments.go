package market

// DefaultInstruments is the instrument set a new simulation starts with.
var DefaultInstruments = []Instrument{
	{Symbol: "AAPL", Company: "Apple Inc.", Sector: "Technology", Price: 175.50, Volatility: 0.012},
	{Symbol: "MSFT", Company: "Microsoft Corporation", Sector: "Technology", Price: 410.20, Volatility: 0.010},
	{Symbol: "GOOGL", Company: "Alphabet Inc.", Sector: "Technology", Price: 142.80, Volatility: 0.013},
	{Symbol: "AMZN", Company: "Amazon.com Inc.", Sector: "Consumer", Price: 178.30, Volatility: 0.014},
	{Symbol: "TSLA", Company: "Tesla Inc.", Sector: "Automotive", Price: 195.60, Volatility: 0.025},
	{Symbol: "F", Company: "Ford Motor Company", Sector: "Automotive", Price: 12.10, Volatility: 0.018},
	{Symbol: "JPM", Company: "JPMorgan Chase & Co.", Sector: "Finance", Price: 198.40, Volatility: 0.009},
	{Symbol: "GS", Company: "Goldman Sachs Group", Sector: "Finance", Price: 452.70, Volatility: 0.011},
	{Symbol: "XOM", Company: "Exxon Mobil Corporation", Sector: "Energy", Price: 112.90, Volatility: 0.012},
	{Symbol: "JNJ", Company: "Johnson & Johnson", Sector: "Healthcare", Price: 156.30, Volatility: 0.007},
}

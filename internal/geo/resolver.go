// Package geo resolves city/state pairs to coordinates and folds leads
// and page events into the per-city records behind the market map.
package geo

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Curated metro coordinates for the target markets, keyed "City|ST".
// Exact match only; anything else falls through to the state centroid.
var metroCoords = map[string]Point{
	"New York|NY":         {40.7128, -74.0060},
	"Los Angeles|CA":      {34.0522, -118.2437},
	"Chicago|IL":          {41.8781, -87.6298},
	"Houston|TX":          {29.7604, -95.3698},
	"Phoenix|AZ":          {33.4484, -112.0740},
	"Philadelphia|PA":     {39.9526, -75.1652},
	"San Antonio|TX":      {29.4241, -98.4936},
	"San Diego|CA":        {32.7157, -117.1611},
	"Dallas|TX":           {32.7767, -96.7970},
	"Austin|TX":           {30.2672, -97.7431},
	"Jacksonville|FL":     {30.3322, -81.6557},
	"Fort Worth|TX":       {32.7555, -97.3308},
	"Columbus|OH":         {39.9612, -82.9988},
	"Charlotte|NC":        {35.2271, -80.8431},
	"San Francisco|CA":    {37.7749, -122.4194},
	"Indianapolis|IN":     {39.7684, -86.1581},
	"Seattle|WA":          {47.6062, -122.3321},
	"Denver|CO":           {39.7392, -104.9903},
	"Washington|DC":       {38.9072, -77.0369},
	"Boston|MA":           {42.3601, -71.0589},
	"El Paso|TX":          {31.7619, -106.4850},
	"Nashville|TN":        {36.1627, -86.7816},
	"Detroit|MI":          {42.3314, -83.0458},
	"Oklahoma City|OK":    {35.4676, -97.5164},
	"Portland|OR":         {45.5152, -122.6784},
	"Las Vegas|NV":        {36.1699, -115.1398},
	"Memphis|TN":          {35.1495, -90.0490},
	"Louisville|KY":       {38.2527, -85.7585},
	"Baltimore|MD":        {39.2904, -76.6122},
	"Milwaukee|WI":        {43.0389, -87.9065},
	"Albuquerque|NM":      {35.0844, -106.6504},
	"Tucson|AZ":           {32.2226, -110.9747},
	"Fresno|CA":           {36.7378, -119.7871},
	"Sacramento|CA":       {38.5816, -121.4944},
	"Kansas City|MO":      {39.0997, -94.5786},
	"Mesa|AZ":             {33.4152, -111.8315},
	"Atlanta|GA":          {33.7490, -84.3880},
	"Omaha|NE":            {41.2565, -95.9345},
	"Colorado Springs|CO": {38.8339, -104.8214},
	"Raleigh|NC":          {35.7796, -78.6382},
	"Miami|FL":            {25.7617, -80.1918},
	"Tampa|FL":            {27.9506, -82.4572},
	"Orlando|FL":          {28.5383, -81.3792},
	"Scottsdale|AZ":       {33.4942, -111.9261},
	"Minneapolis|MN":      {44.9778, -93.2650},
	"New Orleans|LA":      {29.9511, -90.0715},
	"Cleveland|OH":        {41.4993, -81.6944},
	"Pittsburgh|PA":       {40.4406, -79.9959},
	"Salt Lake City|UT":   {40.7608, -111.8910},
	"St. Louis|MO":        {38.6270, -90.1994},
	"San Jose|CA":         {37.3382, -121.8863},
}

// State centroids, 50 states plus DC, keyed by postal code.
var stateCoords = map[string]Point{
	"AL": {32.8067, -86.7911},
	"AK": {61.3707, -152.4044},
	"AZ": {33.7298, -111.4312},
	"AR": {34.9697, -92.3731},
	"CA": {36.1162, -119.6816},
	"CO": {39.0598, -105.3111},
	"CT": {41.5978, -72.7554},
	"DE": {39.3185, -75.5071},
	"DC": {38.8974, -77.0268},
	"FL": {27.7663, -81.6868},
	"GA": {33.0406, -83.6431},
	"HI": {21.0943, -157.4983},
	"ID": {44.2405, -114.4788},
	"IL": {40.3495, -88.9861},
	"IN": {39.8494, -86.2583},
	"IA": {42.0115, -93.2105},
	"KS": {38.5266, -96.7265},
	"KY": {37.6681, -84.6701},
	"LA": {31.1695, -91.8678},
	"ME": {44.6939, -69.3819},
	"MD": {39.0639, -76.8021},
	"MA": {42.2302, -71.5301},
	"MI": {43.3266, -84.5361},
	"MN": {45.6945, -93.9002},
	"MS": {32.7416, -89.6787},
	"MO": {38.4561, -92.2884},
	"MT": {46.9219, -110.4544},
	"NE": {41.1254, -98.2681},
	"NV": {38.3135, -117.0554},
	"NH": {43.4525, -71.5639},
	"NJ": {40.2989, -74.5210},
	"NM": {34.8405, -106.2485},
	"NY": {42.1657, -74.9481},
	"NC": {35.6301, -79.8064},
	"ND": {47.5289, -99.7840},
	"OH": {40.3888, -82.7649},
	"OK": {35.5653, -96.9289},
	"OR": {44.5720, -122.0709},
	"PA": {40.5908, -77.2098},
	"RI": {41.6809, -71.5118},
	"SC": {33.8569, -80.9450},
	"SD": {44.2998, -99.4388},
	"TN": {35.7478, -86.6923},
	"TX": {31.0545, -97.5635},
	"UT": {40.1500, -111.8624},
	"VT": {44.0459, -72.7107},
	"VA": {37.7693, -78.1700},
	"WA": {47.4009, -121.4905},
	"WV": {38.4912, -80.9545},
	"WI": {44.2685, -89.6165},
	"WY": {42.7560, -107.3025},
}

// Full state names accepted as an alternate key into stateCoords.
var stateNames = map[string]string{
	"Alabama": "AL", "Alaska": "AK", "Arizona": "AZ", "Arkansas": "AR",
	"California": "CA", "Colorado": "CO", "Connecticut": "CT",
	"Delaware": "DE", "District of Columbia": "DC", "Florida": "FL",
	"Georgia": "GA", "Hawaii": "HI", "Idaho": "ID", "Illinois": "IL",
	"Indiana": "IN", "Iowa": "IA", "Kansas": "KS", "Kentucky": "KY",
	"Louisiana": "LA", "Maine": "ME", "Maryland": "MD",
	"Massachusetts": "MA", "Michigan": "MI", "Minnesota": "MN",
	"Mississippi": "MS", "Missouri": "MO", "Montana": "MT",
	"Nebraska": "NE", "Nevada": "NV", "New Hampshire": "NH",
	"New Jersey": "NJ", "New Mexico": "NM", "New York": "NY",
	"North Carolina": "NC", "North Dakota": "ND", "Ohio": "OH",
	"Oklahoma": "OK", "Oregon": "OR", "Pennsylvania": "PA",
	"Rhode Island": "RI", "South Carolina": "SC", "South Dakota": "SD",
	"Tennessee": "TN", "Texas": "TX", "Utah": "UT", "Vermont": "VT",
	"Virginia": "VA", "Washington": "WA", "West Virginia": "WV",
	"Wisconsin": "WI", "Wyoming": "WY",
}

// Resolve maps a city/state pair to coordinates. Metro match first,
// state centroid second, nil on a complete miss. Callers skip records
// that resolve to nil rather than plotting them; absence of coordinates
// is never an error.
func Resolve(city, state string) *Point {
	if p, ok := metroCoords[city+"|"+state]; ok {
		return &p
	}
	if p, ok := stateCoords[state]; ok {
		return &p
	}
	if code, ok := stateNames[state]; ok {
		p := stateCoords[code]
		return &p
	}
	return nil
}

package tui

type route string

const (
	routeLogin     route = "login"
	routeDashboard route = "dashboard"
	routeTickets   route = "tickets"
	routeDetail    route = "detail"
	routeNewTicket route = "new-ticket"
	routeImport    route = "import"
	routeChannels  route = "channels"
	routeReports   route = "reports"
	routeAnalytics route = "analytics"
	routeSettings  route = "settings"
)

// tabs are the pages reachable from the menu bar, in hotkey order.
var tabs = []route{
	routeDashboard,
	routeTickets,
	routeNewTicket,
	routeImport,
	routeChannels,
	routeReports,
	routeAnalytics,
	routeSettings,
}

func (r route) title() string {
	switch r {
	case routeLogin:
		return "Login"
	case routeDashboard:
		return "Dashboard"
	case routeTickets:
		return "Tickets"
	case routeDetail:
		return "Ticket"
	case routeNewTicket:
		return "New Ticket"
	case routeImport:
		return "Import"
	case routeChannels:
		return "Channels"
	case routeReports:
		return "Reports"
	case routeAnalytics:
		return "Analytics"
	case routeSettings:
		return "Settings"
	default:
		return string(r)
	}
}

// guard returns where a request for r actually lands: signed-out users only
// see login, and signed-in users skip it.
func guard(r route, authenticated bool) route {
	switch {
	case !authenticated:
		return routeLogin
	case r == routeLogin:
		return routeDashboard
	default:
		return r
	}
}

package commands

var DashboardMode = dashboardMode

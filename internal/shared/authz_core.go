package shared

// Module identifiers gated by the policy engine. The set is open: the catalog file may
// declare more, these are the ones the bundled services use.
const (
	ModuleParties     = "Parties"
	ModuleEmployees   = "Employees"
	ModuleVehicles    = "Vehicles"
	ModuleOrders      = "Orders"
	ModuleMaintenance = "Maintenance"
	ModuleFuel        = "Fuel"
	ModuleForecasts   = "Previsoes"
	ModulePermissions = "Permissions"
	ModuleAudit       = "Audit"
)

// CoreModules lists the modules wired by the bundled services.
func CoreModules() []string {
	return []string{
		ModuleParties,
		ModuleEmployees,
		ModuleVehicles,
		ModuleOrders,
		ModuleMaintenance,
		ModuleFuel,
		ModuleForecasts,
		ModulePermissions,
		ModuleAudit,
	}
}

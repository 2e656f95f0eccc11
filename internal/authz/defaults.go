// Copyright 2026 The AuthCore Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package authz

// Business modules of the dealership application. The catalog is seeded from
// this list; additional modules can be registered at runtime through
// PermissionRepository.Ensure.
const (
	ModuleCustomers      = "customers"
	ModuleVehicles       = "vehicles"
	ModuleOrders         = "orders"
	ModuleWarehouse      = "warehouse"
	ModuleCalendar       = "calendar"
	ModuleUsers          = "users"
	ModuleAdministration = "administration"
)

// Modules lists every seeded module in display order.
var Modules = []string{
	ModuleCustomers,
	ModuleVehicles,
	ModuleOrders,
	ModuleWarehouse,
	ModuleCalendar,
	ModuleUsers,
	ModuleAdministration,
}

// Built-in role names seeded by the initial schema. "mechanik" is the
// workshop default applied to new principals; "admin" holds every grant
// including administration:admin.
const (
	RoleAdmin    = "admin"
	RoleVedouci  = "vedouci"
	RoleMechanik = "mechanik"
)

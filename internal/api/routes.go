package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/voltgrid/energy-server/internal/authz"
)

// setupAPIRoutes sets up API v1 routes
func (s *RESTServer) setupAPIRoutes(r chi.Router) {
	// Health check
	r.Get("/health", s.HandleHealth)
	r.Get("/", s.HandleRoot)

	// Auth routes (public)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.HandleLogin)
		r.Post("/refresh", s.HandleRefresh)
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		// Users
		r.Route("/users", func(r chi.Router) {
			r.Get("/me", s.HandleGetCurrentUser)
			r.With(s.require(authz.PermUsersRead)).Get("/", s.HandleListUsers)
			r.With(s.require(authz.PermUsersWrite)).Post("/", s.HandleCreateUser)
			r.Route("/{id}", func(r chi.Router) {
				r.With(s.require(authz.PermUsersRead)).Get("/", s.HandleGetUser)
				r.With(s.require(authz.PermUsersWrite)).Put("/", s.HandleUpdateUser)
				r.With(s.require(authz.PermUsersWrite)).Delete("/", s.HandleDeleteUser)
				r.With(s.require(authz.PermUsersRead)).Get("/companies", s.HandleListUserCompanies)
				r.With(s.require(authz.PermUsersWrite)).Post("/companies", s.HandleAddUserCompany)
				r.With(s.require(authz.PermUsersWrite)).Delete("/companies/{companyID}", s.HandleRemoveUserCompany)
				r.With(s.require(authz.PermAssignmentsRead)).Get("/assignments", s.HandleUserAssignments)
			})
		})

		// Companies
		r.Route("/companies", func(r chi.Router) {
			r.With(s.require(authz.PermCompaniesRead)).Get("/", s.HandleListCompanies)
			r.With(s.require(authz.PermCompaniesWrite)).Post("/", s.HandleCreateCompany)
			r.Route("/{id}", func(r chi.Router) {
				r.With(s.require(authz.PermCompaniesRead)).Get("/", s.HandleGetCompany)
				r.With(s.require(authz.PermCompaniesWrite)).Put("/", s.HandleUpdateCompany)
				r.With(s.require(authz.PermCompaniesWrite)).Delete("/", s.HandleDeleteCompany)
				r.With(s.require(authz.PermCompaniesRead)).Get("/facilities", s.HandleListFacilities)
				r.With(s.require(authz.PermCompaniesWrite)).Post("/facilities", s.HandleCreateFacility)
			})
		})

		// Facilities
		r.Route("/facilities/{id}", func(r chi.Router) {
			r.With(s.require(authz.PermCompaniesRead)).Get("/", s.HandleGetFacility)
			r.With(s.require(authz.PermCompaniesWrite)).Delete("/", s.HandleDeleteFacility)
			r.With(s.require(authz.PermCompaniesRead)).Get("/departments", s.HandleListDepartments)
			r.With(s.require(authz.PermCompaniesWrite)).Post("/departments", s.HandleCreateDepartment)
		})

		// Departments
		r.Route("/departments/{id}", func(r chi.Router) {
			r.With(s.require(authz.PermCompaniesRead)).Get("/", s.HandleGetDepartment)
			r.With(s.require(authz.PermCompaniesWrite)).Delete("/", s.HandleDeleteDepartment)
		})

		// Smart meters
		r.Route("/smart-meters", func(r chi.Router) {
			r.With(s.require(authz.PermDevicesRead)).Get("/", s.HandleListSmartMeters)
			r.With(s.require(authz.PermDevicesWrite)).Post("/", s.HandleCreateSmartMeter)
			r.Route("/{id}", func(r chi.Router) {
				r.With(s.require(authz.PermDevicesRead)).Get("/", s.HandleGetSmartMeter)
				r.With(s.require(authz.PermDevicesWrite)).Put("/", s.HandleUpdateSmartMeter)
				r.With(s.require(authz.PermDevicesWrite)).Delete("/", s.HandleDeleteSmartMeter)
				r.With(s.require(authz.PermDevicesWrite)).Put("/status", s.HandleSetSmartMeterStatus)
			})
		})

		// Edge gateways
		r.Route("/edge-gateways", func(r chi.Router) {
			r.With(s.require(authz.PermDevicesRead)).Get("/", s.HandleListEdgeGateways)
			r.With(s.require(authz.PermDevicesWrite)).Post("/", s.HandleCreateEdgeGateway)
			r.Route("/{id}", func(r chi.Router) {
				r.With(s.require(authz.PermDevicesRead)).Get("/", s.HandleGetEdgeGateway)
				r.With(s.require(authz.PermDevicesWrite)).Put("/", s.HandleUpdateEdgeGateway)
				r.With(s.require(authz.PermDevicesWrite)).Delete("/", s.HandleDeleteEdgeGateway)
				r.With(s.require(authz.PermDevicesWrite)).Put("/status", s.HandleSetEdgeGatewayStatus)
				r.With(s.require(authz.PermDevicesRead)).Get("/network-config", s.HandleGetGatewayNetworkConfig)
				r.With(s.require(authz.PermDevicesWrite)).Put("/network-config", s.HandleSaveGatewayNetworkConfig)
			})
		})

		// Assignments
		r.Route("/assignments", func(r chi.Router) {
			r.With(s.require(authz.PermAssignmentsRead)).Get("/", s.HandleListAssignments)
			r.With(s.require(authz.PermAssignmentsWrite)).Post("/", s.HandleCreateAssignment)
			r.With(s.require(authz.PermAssignmentsWrite)).Post("/assign-edge-gateway", s.HandleAssignEdgeGateway)
			r.With(s.require(authz.PermAssignmentsWrite)).Post("/assign-smart-meters", s.HandleAssignSmartMeters)
			r.With(s.require(authz.PermAssignmentsWrite)).Post("/remove-edge-gateway", s.HandleRemoveEdgeGateway)
			r.Route("/{id}", func(r chi.Router) {
				r.With(s.require(authz.PermAssignmentsRead)).Get("/", s.HandleGetAssignment)
				r.With(s.require(authz.PermAssignmentsWrite)).Put("/", s.HandleUpdateAssignment)
				r.With(s.require(authz.PermAssignmentsDel)).Delete("/", s.HandleDeleteAssignment)
				r.With(s.require(authz.PermAssignmentsWrite)).Delete("/smart-meters/{meterID}", s.HandleRemoveAssignmentMeter)
			})
		})

		// Events
		r.Route("/events", func(r chi.Router) {
			r.With(s.require(authz.PermEventsRead)).Get("/", s.HandleListEvents)
		})
	})
}

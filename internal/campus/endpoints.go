package campus

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// Endpoint is one backend route. Paths with an ":id" segment need an ID.
type Endpoint struct {
	Name   string `json:"name"`
	Method string `json:"method"`
	Path   string `json:"path"`
}

// NeedsID reports whether the path has an ":id" placeholder.
func (e Endpoint) NeedsID() bool {
	return strings.Contains(e.Path, ":id")
}

// Resolve substitutes id into the path. It fails when the endpoint needs
// an ID and none was given, or when one was given but is not used.
func (e Endpoint) Resolve(id string) (string, error) {
	if !e.NeedsID() {
		if id != "" {
			return "", fmt.Errorf("endpoint %s takes no id", e.Name)
		}

		return e.Path, nil
	}

	if id == "" {
		return "", fmt.Errorf("endpoint %s requires an id", e.Name)
	}

	return strings.Replace(e.Path, ":id", url.PathEscape(id), 1), nil
}

// Endpoints is the catalog of backend routes keyed by name.
var Endpoints = map[string]Endpoint{}

func register(name, method, path string) Endpoint {
	e := Endpoint{Name: name, Method: method, Path: path}
	Endpoints[name] = e

	return e
}

// User.
var (
	EndpointRegister          = register("register", http.MethodPost, "/api/user/register")
	EndpointLogin             = register("login", http.MethodPost, "/api/user/login")
	EndpointForgotPassword    = register("forgot-password", http.MethodPut, "/api/user/forgot-password")
	EndpointVerifyOTP         = register("verify-forgot-password-otp", http.MethodPut, "/api/user/verify-forgot-password-otp")
	EndpointResetPassword     = register("reset-password", http.MethodPut, "/api/user/reset-password")
	EndpointRefreshToken      = register("refresh-token", http.MethodPost, "/api/user/refresh-token")
	EndpointUserDetails       = register("user-details", http.MethodGet, "/api/user/user-details")
	EndpointLogout            = register("logout", http.MethodGet, "/api/user/logout")
	EndpointUploadAvatar      = register("upload-avatar", http.MethodPut, "/api/user/upload-avatar")
	EndpointUpdateUserDetails = register("update-user", http.MethodPut, "/api/user/update-user")
)

// Students.
var (
	EndpointAddStudent    = register("add-student", http.MethodPost, "/api/user/students")
	EndpointGetStudents   = register("get-students", http.MethodGet, "/api/user/students")
	EndpointGetStudent    = register("get-student", http.MethodGet, "/api/user/students/:id")
	EndpointUpdateStudent = register("update-student", http.MethodPut, "/api/user/students/:id")
	EndpointDeleteStudent = register("delete-student", http.MethodDelete, "/api/user/students/:id")
)

// Attendance.
var (
	EndpointScanAttendance    = register("scan-attendance", http.MethodPost, "/api/attendance/scan")
	EndpointStudentAttendance = register("student-attendance", http.MethodPost, "/api/attendance/get-by-student")
	EndpointAllAttendance     = register("all-attendance", http.MethodGet, "/api/attendance/list")
	EndpointTodaySummary      = register("today-summary", http.MethodGet, "/api/attendance/today-summary")
	EndpointAttendanceDay     = register("attendance-day", http.MethodGet, "/api/attendance/day/:id")
	EndpointAttendanceMonth   = register("attendance-month", http.MethodGet, "/api/attendance/by-month/:id")
	EndpointMarkAttendance    = register("mark-attendance", http.MethodPost, "/api/attendance/mark")
)

// Shop routes the backend also serves. Only reachable through Call.
func init() {
	register("add-category", http.MethodPost, "/api/category/add-category")
	register("get-category", http.MethodGet, "/api/category/get")
	register("update-category", http.MethodPut, "/api/category/update")
	register("delete-category", http.MethodDelete, "/api/category/delete")

	register("create-subcategory", http.MethodPost, "/api/subcategory/create")
	register("get-subcategory", http.MethodPost, "/api/subcategory/get")
	register("update-subcategory", http.MethodPut, "/api/subcategory/update")
	register("delete-subcategory", http.MethodDelete, "/api/subcategory/delete")

	register("create-product", http.MethodPost, "/api/product/create")
	register("get-product", http.MethodPost, "/api/product/get")
	register("update-product", http.MethodPut, "/api/product/update-product-details")
	register("delete-product", http.MethodDelete, "/api/product/delete-product")
	register("search-product", http.MethodPost, "/api/product/search-product")

	register("add-to-cart", http.MethodPost, "/api/cart/create")
	register("get-cart", http.MethodGet, "/api/cart/get")
	register("update-cart-qty", http.MethodPut, "/api/cart/update-qty")
	register("delete-cart-item", http.MethodDelete, "/api/cart/delete-cart-item")

	register("create-address", http.MethodPost, "/api/address/create")
	register("get-address", http.MethodGet, "/api/address/get")
	register("update-address", http.MethodPut, "/api/address/update")
	register("disable-address", http.MethodDelete, "/api/address/disable")

	register("cash-on-delivery", http.MethodPost, "/api/order/cash-on-delivery")
	register("checkout", http.MethodPost, "/api/order/checkout")
	register("cancel-order", http.MethodPost, "/api/order/cancel")
	register("order-list", http.MethodGet, "/api/order/order-list")

	register("admin-orders", http.MethodGet, "/api/order/admin/orders")
	register("admin-update-order-status", http.MethodPost, "/api/order/admin/update-status")

	register("upload-image", http.MethodPost, "/api/file/upload")
}

// LookupEndpoint finds a catalog entry by name.
func LookupEndpoint(name string) (Endpoint, bool) {
	e, ok := Endpoints[name]
	return e, ok
}

// EndpointNames lists the catalog in sorted order.
func EndpointNames() []string {
	names := make([]string, 0, len(Endpoints))
	for name := range Endpoints {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

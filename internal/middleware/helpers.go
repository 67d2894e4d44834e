// internal/middleware/helpers.go
package middleware

import "github.com/gin-gonic/gin"

// GetCustomerID gets the authenticated customer ID from context
func GetCustomerID(c *gin.Context) (int64, bool) {
	v, exists := c.Get("customer_id")
	if !exists {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

// MustGetCustomerID gets the authenticated customer ID from context or panics
func MustGetCustomerID(c *gin.Context) int64 {
	id, exists := GetCustomerID(c)
	if !exists {
		panic("customer_id not found in context")
	}
	return id
}

// GetRole gets the caller's role from context
func GetRole(c *gin.Context) string {
	v, exists := c.Get("role")
	if !exists {
		return ""
	}
	role, ok := v.(string)
	if !ok {
		return ""
	}
	return role
}

// IsAuthenticated checks if request is authenticated
func IsAuthenticated(c *gin.Context) bool {
	_, exists := c.Get("customer_id")
	return exists
}

// IsAdmin checks if the caller is an admin
func IsAdmin(c *gin.Context) bool {
	return GetRole(c) == "admin"
}

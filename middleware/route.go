package middleware

import (
	"github.com/gin-gonic/gin"
)

// RouteOpt tunes a single route.
type RouteOpt struct {
	IsAuth bool
}

// Router registers routes, prefixing auth-protected ones with Auth.
type Router struct {
	R    gin.IRoutes
	Auth gin.HandlerFunc
}

func (rt Router) chain(handler gin.HandlerFunc, opt RouteOpt) []gin.HandlerFunc {
	if opt.IsAuth && rt.Auth != nil {
		return []gin.HandlerFunc{rt.Auth, handler}
	}
	return []gin.HandlerFunc{handler}
}

// POST registers handler, behind Auth when opt.IsAuth.
func (rt Router) POST(path string, handler gin.HandlerFunc, opt RouteOpt) {
	rt.R.POST(path, rt.chain(handler, opt)...)
}

// GET registers handler, behind Auth when opt.IsAuth.
func (rt Router) GET(path string, handler gin.HandlerFunc, opt RouteOpt) {
	rt.R.GET(path, rt.chain(handler, opt)...)
}

func (rt Router) PUT(path string, handler gin.HandlerFunc, opt RouteOpt) {
	rt.R.PUT(path, rt.chain(handler, opt)...)
}

func (rt Router) DELETE(path string, handler gin.HandlerFunc, opt RouteOpt) {
	rt.R.DELETE(path, rt.chain(handler, opt)...)
}

// Package logx is a thin zerolog wrapper with hot-swappable sinks.
//
// Components hold a Logger value; the Service re-points all of them at new
// outputs/levels when the runtime config changes, without plumbing a new
// logger through every constructor.
package logx

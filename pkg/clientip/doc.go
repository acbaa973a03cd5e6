// Package clientip extracts the client address from HTTP requests.
//
// Headers are checked in this order, and the first one holding a valid
// address wins:
//  1. CF-Connecting-IP (Cloudflare)
//  2. DO-Connecting-IP (DigitalOcean)
//  3. X-Forwarded-For (leftmost entry)
//  4. X-Real-IP
//
// RemoteAddr is used when none of them does. Addresses are normalized with
// net.IP.String, and 0.0.0.0 or :: are treated as missing.
//
//	ip := clientip.GetIP(r)
package clientip

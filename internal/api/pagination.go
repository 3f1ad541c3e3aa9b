package api

import (
	"math"
	"net/http"
	"strconv"

	"storefront/internal/service"

	"github.com/gin-gonic/gin"
)

// maxOffset bounds (page-1)*page_size so the window never overflows
const maxOffset = math.MaxInt32

// Paginator turns page/page_size query parameters into limit/offset windows
type Paginator struct {
	PageSize    int
	MaxPageSize int
}

type pageRequest struct {
	number int
	size   int
}

func (r pageRequest) window() service.Page {
	return service.Page{Limit: r.size, Offset: (r.number - 1) * r.size}
}

// PageResponse is the envelope of every paginated listing
type PageResponse struct {
	Count    int         `json:"count"`
	Next     *string     `json:"next"`
	Previous *string     `json:"previous"`
	Results  interface{} `json:"results"`
}

func (p Paginator) parse(c *gin.Context) (pageRequest, bool) {
	req := pageRequest{number: 1, size: p.PageSize}

	if raw := c.Query("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusNotFound, gin.H{"error": "Invalid page"})
			return req, false
		}
		req.number = n
	}
	if raw := c.Query("page_size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid page_size"})
			return req, false
		}
		if n > p.MaxPageSize {
			n = p.MaxPageSize
		}
		req.size = n
	}
	if req.number-1 > maxOffset/req.size {
		c.JSON(http.StatusNotFound, gin.H{"error": "Invalid page"})
		return req, false
	}
	return req, true
}

func (p Paginator) respond(c *gin.Context, req pageRequest, count int, results interface{}) {
	if req.number > 1 && (req.number-1)*req.size >= count {
		c.JSON(http.StatusNotFound, gin.H{"error": "Invalid page"})
		return
	}

	resp := PageResponse{Count: count, Results: results}
	if req.number*req.size < count {
		resp.Next = pageURL(c, req.number+1)
	}
	if req.number > 1 {
		resp.Previous = pageURL(c, req.number-1)
	}
	c.JSON(http.StatusOK, resp)
}

func pageURL(c *gin.Context, page int) *string {
	u := *c.Request.URL
	u.Host = c.Request.Host
	u.Scheme = "http"
	if c.Request.TLS != nil {
		u.Scheme = "https"
	}

	q := u.Query()
	if page == 1 {
		q.Del("page")
	} else {
		q.Set("page", strconv.Itoa(page))
	}
	u.RawQuery = q.Encode()

	s := u.String()
	return &s
}

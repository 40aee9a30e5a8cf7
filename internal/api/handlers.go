package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tduarte/mailmind/internal/process"
	"github.com/tduarte/mailmind/internal/proposal"
	"github.com/tduarte/mailmind/internal/status"
	"github.com/tduarte/mailmind/internal/store"
	"github.com/tduarte/mailmind/internal/sync"
)

func (s *Server) syncStatus(c *gin.Context) {
	state := s.engine.State()

	cursors, err := s.engine.Cursors()
	if err != nil {
		s.fail(c, err)
		return
	}
	total, err := s.db.CountEmails()
	if err != nil {
		s.fail(c, err)
		return
	}

	resp := gin.H{
		"state":        state,
		"connected":    state != status.Disconnected,
		"syncing":      state == status.Syncing,
		"total_emails": total,
		"sync_states":  cursors,
	}
	if state != status.Disconnected {
		if folders, err := s.engine.ListFolders(); err == nil {
			resp["folders"] = folders
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) syncConnect(c *gin.Context) {
	if s.engine.State() != status.Disconnected {
		c.JSON(http.StatusOK, gin.H{"status": "already_connected"})
		return
	}
	if err := s.engine.Connect(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	resp := gin.H{"status": "connected"}
	if folders, err := s.engine.ListFolders(); err == nil {
		resp["folders"] = folders
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) syncDisconnect(c *gin.Context) {
	if err := s.engine.Disconnect(); err != nil {
		s.log.Warn("disconnect", zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"status": "disconnected"})
}

func (s *Server) syncRun(c *gin.Context) {
	folder := c.DefaultQuery("folder", "INBOX")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	if s.engine.State() == status.Disconnected {
		if err := s.engine.Connect(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "not connected and failed to connect: " + err.Error()})
			return
		}
	}

	result, err := s.engine.SyncFolder(c.Request.Context(), folder, limit)
	if err != nil {
		if errors.Is(err, sync.ErrSyncInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) syncFolders(c *gin.Context) {
	if folder := c.Query("folder"); folder != "" {
		count, err := s.engine.FolderCount(folder)
		if err != nil {
			if errors.Is(err, sync.ErrNotConnected) {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
				return
			}
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"folder": folder, "messages": count})
		return
	}

	folders, err := s.engine.ListFolders()
	if err != nil {
		if errors.Is(err, sync.ErrNotConnected) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"folders": folders})
}

func (s *Server) listEmails(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	emails, err := s.db.ListEmails(store.EmailFilter{
		Folder:     c.Query("folder"),
		Category:   c.Query("category"),
		UnreadOnly: c.Query("unread") == "true",
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"emails": emails, "count": len(emails)})
}

func (s *Server) getEmail(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email id"})
		return
	}
	email, err := s.db.GetEmail(id)
	if err != nil {
		s.fail(c, err)
		return
	}
	if email == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "email not found"})
		return
	}
	links, err := s.db.ListLinksByEmail(id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"email": email, "links": links})
}

func (s *Server) processRun(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	result, err := s.processor.ProcessUnclassified(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) processEmail(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email id"})
		return
	}
	result, err := s.processor.ProcessEmailByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, process.ErrEmailNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) processStats(c *gin.Context) {
	stats, err := s.processor.Stats()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) contentScan(c *gin.Context) {
	minRelevance := parseFloat(c.DefaultQuery("min_relevance", "0.3"), 0.3)

	stats, err := s.router.ScanAndClassify(minRelevance)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) contentPipeline(c *gin.Context) {
	minRelevance := parseFloat(c.DefaultQuery("min_relevance", "0.5"), 0.5)
	limitPerType, _ := strconv.Atoi(c.DefaultQuery("limit_per_type", "20"))
	dryRun := c.Query("dry_run") == "true"

	result, err := s.router.RunPipeline(c.Request.Context(), minRelevance, limitPerType, dryRun)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) contentIntelligence(c *gin.Context) {
	report, err := s.router.Report()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) highValueLinks(c *gin.Context) {
	minRelevance := parseFloat(c.DefaultQuery("min_relevance", "0.6"), 0.6)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	links, err := s.router.HighValueLinks(minRelevance, limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"links": links, "count": len(links)})
}

func (s *Server) completeExtraction(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid link id"})
		return
	}
	var result map[string]any
	if err := c.ShouldBindJSON(&result); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid result payload"})
		return
	}
	found, err := s.router.CompleteExtraction(id, result)
	if err != nil {
		s.fail(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "link not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "extracted", "link_id": id})
}

func (s *Server) generateProposals(c *gin.Context) {
	proposals, err := s.proposals.GenerateAll()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"proposals": proposals, "count": len(proposals)})
}

func (s *Server) listProposals(c *gin.Context) {
	proposals, err := s.proposals.List(c.Query("status"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"proposals": proposals, "count": len(proposals)})
}

func (s *Server) getProposal(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid proposal id"})
		return
	}
	p, items, err := s.proposals.Get(id)
	if err != nil {
		if errors.Is(err, proposal.ErrProposalNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"proposal": p, "items": items})
}

func (s *Server) approveProposal(c *gin.Context) {
	s.reviewProposal(c, s.proposals.Approve, "approved")
}

func (s *Server) rejectProposal(c *gin.Context) {
	s.reviewProposal(c, s.proposals.Reject, "rejected")
}

func (s *Server) reviewProposal(c *gin.Context, review func(int64) error, verdict string) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid proposal id"})
		return
	}
	if err := review(id); err != nil {
		switch {
		case errors.Is(err, proposal.ErrProposalNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, proposal.ErrProposalNotPending):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			s.fail(c, err)
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "status": verdict})
}

func (s *Server) fail(c *gin.Context, err error) {
	s.log.Error("request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func parseFloat(v string, fallback float64) float64 {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

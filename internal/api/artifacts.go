package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	apperrors "patent_explorer_go_backend/internal/errors"
	"patent_explorer_go_backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
)

func getCSVHandler(artifactStore services.ArtifactStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		record, err := artifactStore.GetCSVByID(c.Param("id"))
		if err != nil {
			apperrors.HandleError(c, apperrors.New404Error("CSV not found"))
			return
		}
		var headers []string
		var rows [][]string
		if err := json.Unmarshal(record.Headers, &headers); err != nil {
			apperrors.HandleError(c, apperrors.LogAndReturn500(err))
			return
		}
		if err := json.Unmarshal(record.Rows, &rows); err != nil {
			apperrors.HandleError(c, apperrors.LogAndReturn500(err))
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"id":        record.ID,
			"sessionId": record.SessionID,
			"title":     record.Title,
			"headers":   headers,
			"rows":      rows,
			"content":   record.Content,
			"createdAt": record.CreatedAt,
		})
	}
}

func downloadCSVHandler(artifactStore services.ArtifactStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		record, err := artifactStore.GetCSVByID(c.Param("id"))
		if err != nil {
			apperrors.HandleError(c, apperrors.New404Error("CSV not found"))
			return
		}
		filename := record.Title
		if filename == "" {
			filename = record.ID
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename+".csv"))
		c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(record.Content))
	}
}

func exportCSVXLSXHandler(artifactStore services.ArtifactStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		record, err := artifactStore.GetCSVByID(c.Param("id"))
		if err != nil {
			apperrors.HandleError(c, apperrors.New404Error("CSV not found"))
			return
		}
		var headers []string
		var rows [][]string
		if err := json.Unmarshal(record.Headers, &headers); err != nil {
			apperrors.HandleError(c, apperrors.LogAndReturn500(err))
			return
		}
		if err := json.Unmarshal(record.Rows, &rows); err != nil {
			apperrors.HandleError(c, apperrors.LogAndReturn500(err))
			return
		}

		f := excelize.NewFile()
		defer f.Close()

		sheet := f.GetSheetName(0)
		if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
			apperrors.HandleError(c, apperrors.LogAndReturn500(err))
			return
		}
		for i, row := range rows {
			cell, _ := excelize.CoordinatesToCellName(1, i+2)
			if err := f.SetSheetRow(sheet, cell, &row); err != nil {
				apperrors.HandleError(c, apperrors.LogAndReturn500(err))
				return
			}
		}

		filename := record.Title
		if filename == "" {
			filename = record.ID
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename+".xlsx"))
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		if err := f.Write(c.Writer); err != nil {
			apperrors.HandleError(c, apperrors.LogAndReturn500(err))
		}
	}
}

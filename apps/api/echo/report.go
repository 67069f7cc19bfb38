package echoapi

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/rapor/core/report"
	"github.com/trezcool/rapor/services/export"
)

const (
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	mimeCSV  = "text/csv; charset=utf-8"
	mimePDF  = "application/pdf"
)

type reportApi struct {
	svc     *report.Service
	appName string // printed on report card PDFs
}

func registerReportAPI(g *echo.Group, jwt echo.MiddlewareFunc, api reportApi) {
	rg := g.Group("/reports", jwt)

	// student endpoints
	sg := rg.Group("/mine", studentMiddleware())
	sg.GET("", api.mine)
	sg.GET("/pdf", api.minePDF)

	// staff endpoints
	staff := staffMiddleware()
	rg.POST("/generate", api.generate, staff)
	rg.PATCH("/grades/:grade_id", api.override, staff)

	cg := rg.Group("/classes/:class_id", staff)
	cg.GET("", api.listByClass)
	cg.POST("/publish-all", api.publishAll)
	cg.GET("/export.xlsx", api.exportXLSX)
	cg.GET("/export.csv", api.exportCSV)

	dg := rg.Group("/:id", staff)
	dg.GET("", api.retrieve)
	dg.GET("/pdf", api.retrievePDF)
	dg.PATCH("", api.updateRemarks)
	dg.POST("/recalculate", api.recalculate)
	dg.POST("/publish", api.publish)
}

func attachment(ctx echo.Context, contentType, filename string, data []byte) error {
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return ctx.Blob(http.StatusOK, contentType, data)
}

// Handlers

func (api *reportApi) generate(ctx echo.Context) error {
	var data report.GenerateRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GenerateRequest")
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	res, err := api.svc.Generate(ctx.Request().Context(), data, usr)
	if err != nil {
		return errors.Wrap(err, "generating report cards")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *reportApi) listByClass(ctx echo.Context) error {
	semesterID, err := bindSemester(ctx)
	if err != nil {
		return err
	}
	var ord Ordering
	ord.Bind(ctx, report.ListOrderingFields)
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	items, err := api.svc.ListByClass(ctx.Request().Context(), ctx.Param("class_id"), semesterID, ord.Orderings, usr)
	if err != nil {
		return errors.Wrap(err, "listing report cards")
	}
	return ctx.JSON(http.StatusOK, items)
}

func (api *reportApi) publishAll(ctx echo.Context) error {
	semesterID, err := bindSemester(ctx)
	if err != nil {
		return err
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	res, err := api.svc.PublishAll(ctx.Request().Context(), ctx.Param("class_id"), semesterID, usr)
	if err != nil {
		return errors.Wrap(err, "publishing report cards")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *reportApi) classReports(ctx echo.Context) (report.Class, []report.Report, error) {
	semesterID, err := bindSemester(ctx)
	if err != nil {
		return report.Class{}, nil, err
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return report.Class{}, nil, errors.Wrap(err, "getting context user")
	}
	class, reports, err := api.svc.ClassReports(ctx.Request().Context(), ctx.Param("class_id"), semesterID, usr)
	return class, reports, errors.Wrap(err, "assembling class report cards")
}

func (api *reportApi) exportXLSX(ctx echo.Context) error {
	class, reports, err := api.classReports(ctx)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err = exportsvc.WriteGradeSheet(&buf, class, reports); err != nil {
		return errors.Wrap(err, "exporting grade sheet")
	}
	return attachment(ctx, mimeXLSX, fmt.Sprintf("grades-%s.xlsx", class.Name), buf.Bytes())
}

func (api *reportApi) exportCSV(ctx echo.Context) error {
	class, reports, err := api.classReports(ctx)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err = exportsvc.WriteGradesCSV(&buf, reports); err != nil {
		return errors.Wrap(err, "exporting grades")
	}
	return attachment(ctx, mimeCSV, fmt.Sprintf("grades-%s.csv", class.Name), buf.Bytes())
}

func (api *reportApi) mine(ctx echo.Context) error {
	rep, err := api.studentView(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, rep)
}

func (api *reportApi) minePDF(ctx echo.Context) error {
	rep, err := api.studentView(ctx)
	if err != nil {
		return err
	}
	return api.sendPDF(ctx, rep)
}

func (api *reportApi) studentView(ctx echo.Context) (report.Report, error) {
	semesterID, err := bindSemester(ctx)
	if err != nil {
		return report.Report{}, err
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return report.Report{}, errors.Wrap(err, "getting context user")
	}
	rep, err := api.svc.StudentView(ctx.Request().Context(), usr.ID, semesterID)
	return rep, errors.Wrap(err, "finding own report card")
}

func (api *reportApi) sendPDF(ctx echo.Context, rep report.Report) error {
	var buf bytes.Buffer
	if err := exportsvc.WriteReportPDF(&buf, api.appName, rep); err != nil {
		return errors.Wrap(err, "rendering report card")
	}
	return attachment(ctx, mimePDF, fmt.Sprintf("report-%s-%s.pdf", rep.StudentName, rep.SemesterName), buf.Bytes())
}

func (api *reportApi) retrieve(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	rep, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"), usr)
	if err != nil {
		return errors.Wrap(err, "finding report card")
	}
	return ctx.JSON(http.StatusOK, rep)
}

func (api *reportApi) retrievePDF(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	rep, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"), usr)
	if err != nil {
		return errors.Wrap(err, "finding report card")
	}
	return api.sendPDF(ctx, rep)
}

func (api *reportApi) updateRemarks(ctx echo.Context) error {
	var data report.UpdateCard
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCard")
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	rep, err := api.svc.UpdateRemarks(ctx.Request().Context(), ctx.Param("id"), data, usr)
	if err != nil {
		return errors.Wrap(err, "updating remarks")
	}
	return ctx.JSON(http.StatusOK, rep)
}

func (api *reportApi) recalculate(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	rep, err := api.svc.Recalculate(ctx.Request().Context(), ctx.Param("id"), usr)
	if err != nil {
		return errors.Wrap(err, "recalculating report card")
	}
	return ctx.JSON(http.StatusOK, rep)
}

func (api *reportApi) publish(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	rep, err := api.svc.Publish(ctx.Request().Context(), ctx.Param("id"), usr)
	if err != nil {
		return errors.Wrap(err, "publishing report card")
	}
	return ctx.JSON(http.StatusOK, rep)
}

func (api *reportApi) override(ctx echo.Context) error {
	var data report.OverrideGrade
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to OverrideGrade")
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	grade, err := api.svc.Override(ctx.Request().Context(), ctx.Param("grade_id"), data, usr)
	if err != nil {
		return errors.Wrap(err, "overriding subject grade")
	}
	return ctx.JSON(http.StatusOK, grade)
}

package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/kahawa/core/exam"
	"github.com/trezcool/kahawa/core/user"
)

type examApi struct {
	opts *Options
}

func registerExamAPI(g *echo.Group, jwt, session echo.MiddlewareFunc, opts *Options) {
	api := examApi{opts: opts}
	staff := roleMiddleware(user.RoleTrainer, user.RoleAdmin)
	trainee := roleMiddleware(user.RoleTrainee)

	g.GET("/sessions/:id/exams", api.sessionExams, jwt, session)

	eg := g.Group("/exams", jwt, session)
	eg.POST("", api.create, staff)
	eg.GET("/:id", api.retrieve)
	eg.PUT("/:id/active", api.setActive, staff)
	eg.POST("/:id/questions", api.addQuestion, staff)
	eg.GET("/:id/questions", api.questions, staff)
	eg.POST("/:id/questions/import", api.importQuestions, staff)
	eg.DELETE("/questions/:id", api.removeQuestion, staff)
	eg.POST("/:id/attempts", api.start, trainee)
	eg.GET("/:id/attempts/me", api.myAttempt, trainee)

	bg := g.Group("/question-bank", jwt, session, staff)
	bg.GET("", api.bankList)
	bg.POST("", api.bankCreate)
	bg.GET("/:id", api.bankRetrieve)
	bg.PUT("/:id", api.bankUpdate)
	bg.DELETE("/:id", api.bankRemove)

	ag := g.Group("/attempts", jwt, session)
	ag.GET("/me", api.history, trainee)
	ag.POST("/:id/submit", api.submit, trainee)
}

func (api *examApi) create(ctx echo.Context) error {
	var ne exam.NewExam
	if err := ctx.Bind(&ne); err != nil {
		return errors.Wrap(err, "binding NewExam")
	}
	if err := ne.Validate(api.opts.Validate); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.opts.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	reqCtx := ctx.Request().Context()
	ex, err := api.opts.ExamSvc.Create(reqCtx, ctxUsr.ID, ne)
	if err != nil {
		return err
	}

	api.opts.AuditSvc.Log(reqCtx, ctxUsr.ID, "exam.create", "exam", ex.ID, ex.Title, ctx.RealIP())
	return ctx.JSON(http.StatusCreated, ex)
}

func (api *examApi) retrieve(ctx echo.Context) error {
	ex, err := api.opts.ExamSvc.GetByID(ctx.Request().Context(), intParam(ctx, "id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ex)
}

func (api *examApi) sessionExams(ctx echo.Context) error {
	exams, err := api.opts.ExamSvc.SessionExams(ctx.Request().Context(), intParam(ctx, "id"))
	if err != nil {
		return errors.Wrap(err, "listing exams")
	}
	if exams == nil {
		exams = []exam.Exam{}
	}
	return ctx.JSON(http.StatusOK, exams)
}

type examActiveRequest struct {
	IsActive bool `json:"is_active"`
}

func (api *examApi) setActive(ctx echo.Context) error {
	var req examActiveRequest
	if err := ctx.Bind(&req); err != nil {
		return errors.Wrap(err, "binding examActiveRequest")
	}

	reqCtx := ctx.Request().Context()
	examID := intParam(ctx, "id")
	if err := api.opts.ExamSvc.SetActive(reqCtx, examID, req.IsActive); err != nil {
		return err
	}

	if ctxUsr, err := getContextUser(ctx, api.opts.UserSvc); err == nil {
		action := "exam.deactivate"
		if req.IsActive {
			action = "exam.activate"
		}
		api.opts.AuditSvc.Log(reqCtx, ctxUsr.ID, action, "exam", examID, "", ctx.RealIP())
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Exam updated"})
}

func (api *examApi) addQuestion(ctx echo.Context) error {
	var nq exam.NewQuestion
	if err := ctx.Bind(&nq); err != nil {
		return errors.Wrap(err, "binding NewQuestion")
	}
	if err := nq.Validate(api.opts.Validate); err != nil {
		return err
	}

	q, err := api.opts.ExamSvc.AddQuestion(ctx.Request().Context(), intParam(ctx, "id"), nq)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, q)
}

func (api *examApi) questions(ctx echo.Context) error {
	qs, err := api.opts.ExamSvc.Questions(ctx.Request().Context(), intParam(ctx, "id"))
	if err != nil {
		return err
	}
	if qs == nil {
		qs = []exam.Question{}
	}
	return ctx.JSON(http.StatusOK, qs)
}

func (api *examApi) removeQuestion(ctx echo.Context) error {
	if err := api.opts.ExamSvc.RemoveQuestion(ctx.Request().Context(), intParam(ctx, "id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Question bank

func (api *examApi) bankList(ctx echo.Context) error {
	var filter exam.BankFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding BankFilter")
	}

	qs, err := api.opts.ExamSvc.BankQuestions(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "listing bank questions")
	}
	if qs == nil {
		qs = []exam.BankQuestion{}
	}
	return ctx.JSON(http.StatusOK, qs)
}

func (api *examApi) bankCreate(ctx echo.Context) error {
	var nq exam.NewBankQuestion
	if err := ctx.Bind(&nq); err != nil {
		return errors.Wrap(err, "binding NewBankQuestion")
	}
	if err := nq.Validate(api.opts.Validate); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.opts.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	reqCtx := ctx.Request().Context()
	q, err := api.opts.ExamSvc.AddBankQuestion(reqCtx, ctxUsr.ID, nq)
	if err != nil {
		return err
	}

	api.opts.AuditSvc.Log(reqCtx, ctxUsr.ID, "question_bank.create", "bank_question", q.ID, "", ctx.RealIP())
	return ctx.JSON(http.StatusCreated, q)
}

func (api *examApi) bankRetrieve(ctx echo.Context) error {
	q, err := api.opts.ExamSvc.BankQuestion(ctx.Request().Context(), intParam(ctx, "id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, q)
}

func (api *examApi) bankUpdate(ctx echo.Context) error {
	var nq exam.NewBankQuestion
	if err := ctx.Bind(&nq); err != nil {
		return errors.Wrap(err, "binding NewBankQuestion")
	}
	if err := nq.Validate(api.opts.Validate); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	q, err := api.opts.ExamSvc.ReplaceBankQuestion(reqCtx, intParam(ctx, "id"), nq)
	if err != nil {
		return err
	}

	if ctxUsr, err := getContextUser(ctx, api.opts.UserSvc); err == nil {
		api.opts.AuditSvc.Log(reqCtx, ctxUsr.ID, "question_bank.update", "bank_question", q.ID, "", ctx.RealIP())
	}
	return ctx.JSON(http.StatusOK, q)
}

func (api *examApi) bankRemove(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	id := intParam(ctx, "id")
	if err := api.opts.ExamSvc.RemoveBankQuestion(reqCtx, id); err != nil {
		return err
	}

	if ctxUsr, err := getContextUser(ctx, api.opts.UserSvc); err == nil {
		api.opts.AuditSvc.Log(reqCtx, ctxUsr.ID, "question_bank.delete", "bank_question", id, "", ctx.RealIP())
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *examApi) importQuestions(ctx echo.Context) error {
	var iq exam.ImportQuestions
	if err := ctx.Bind(&iq); err != nil {
		return errors.Wrap(err, "binding ImportQuestions")
	}
	if err := iq.Validate(api.opts.Validate); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	examID := intParam(ctx, "id")
	qs, err := api.opts.ExamSvc.Import(reqCtx, examID, iq)
	if err != nil {
		return err
	}

	if ctxUsr, err := getContextUser(ctx, api.opts.UserSvc); err == nil {
		api.opts.AuditSvc.Log(reqCtx, ctxUsr.ID, "question_bank.import", "exam", examID, "", ctx.RealIP())
	}
	return ctx.JSON(http.StatusCreated, qs)
}

type startAttemptResponse struct {
	Attempt   exam.Attempt    `json:"attempt"`
	Questions []exam.Question `json:"questions"`
}

func (api *examApi) start(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.opts.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	reqCtx := ctx.Request().Context()
	att, qs, err := api.opts.ExamSvc.Start(reqCtx, ctxUsr.ID, intParam(ctx, "id"))
	if err != nil {
		return err
	}
	if qs == nil {
		qs = []exam.Question{}
	}

	api.opts.AuditSvc.Log(reqCtx, ctxUsr.ID, "exam.start", "exam_attempt", att.ID, "", ctx.RealIP())
	return ctx.JSON(http.StatusCreated, startAttemptResponse{Attempt: att, Questions: qs})
}

func (api *examApi) submit(ctx echo.Context) error {
	var sub exam.Submission
	if err := ctx.Bind(&sub); err != nil {
		return errors.Wrap(err, "binding Submission")
	}
	if err := sub.Validate(api.opts.Validate); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.opts.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	reqCtx := ctx.Request().Context()
	att, err := api.opts.ExamSvc.Submit(reqCtx, ctxUsr.ID, intParam(ctx, "id"), sub)
	if err != nil {
		return err
	}

	// a graded exam changes the composite standing right away
	if ex, err := api.opts.ExamSvc.GetByID(reqCtx, att.ExamID); err == nil {
		if _, err = api.opts.RankingSvc.Calculate(reqCtx, ctxUsr.ID, ex.SessionID); err != nil {
			api.opts.Logger.Error("recalculating ranking after exam submission", err)
		}
	}

	api.opts.AuditSvc.Log(reqCtx, ctxUsr.ID, "exam.submit", "exam_attempt", att.ID, "", ctx.RealIP())
	return ctx.JSON(http.StatusOK, att)
}

func (api *examApi) myAttempt(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.opts.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	att, err := api.opts.ExamSvc.Attempt(ctx.Request().Context(), ctxUsr.ID, intParam(ctx, "id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, att)
}

func (api *examApi) history(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.opts.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	attempts, err := api.opts.ExamSvc.History(ctx.Request().Context(), ctxUsr.ID)
	if err != nil {
		return errors.Wrap(err, "listing attempts")
	}
	if attempts == nil {
		attempts = []exam.Attempt{}
	}
	return ctx.JSON(http.StatusOK, attempts)
}

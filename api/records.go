package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jerry-enebeli/bankrec"
	"github.com/jerry-enebeli/bankrec/model"
)

func (a Api) CreateCompany(c *gin.Context) {
	var company model.Company
	if err := c.ShouldBindJSON(&company); err != nil {
		badRequest(c, err)
		return
	}
	created, err := a.bankrec.CreateCompany(c.Request.Context(), company)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (a Api) GetCompany(c *gin.Context) {
	company, err := a.bankrec.GetCompany(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, company)
}

func (a Api) CreateAccount(c *gin.Context) {
	var account model.Account
	if err := c.ShouldBindJSON(&account); err != nil {
		badRequest(c, err)
		return
	}
	created, err := a.bankrec.CreateAccount(c.Request.Context(), account)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (a Api) CreateTax(c *gin.Context) {
	var tax model.Tax
	if err := c.ShouldBindJSON(&tax); err != nil {
		badRequest(c, err)
		return
	}
	created, err := a.bankrec.CreateTax(c.Request.Context(), tax)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (a Api) UpsertCurrencyRate(c *gin.Context) {
	var rate model.CurrencyRate
	if err := c.ShouldBindJSON(&rate); err != nil {
		badRequest(c, err)
		return
	}
	if err := a.bankrec.UpsertCurrencyRate(c.Request.Context(), rate); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rate)
}

func (a Api) CreatePartner(c *gin.Context) {
	var partner model.Partner
	if err := c.ShouldBindJSON(&partner); err != nil {
		badRequest(c, err)
		return
	}
	created, err := a.bankrec.CreatePartner(c.Request.Context(), partner)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (a Api) AddPartnerBankAccount(c *gin.Context) {
	var account model.PartnerBankAccount
	if err := c.ShouldBindJSON(&account); err != nil {
		badRequest(c, err)
		return
	}
	account.PartnerID = c.Param("id")
	created, err := a.bankrec.AddPartnerBankAccount(c.Request.Context(), account)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (a Api) CreateOpenItem(c *gin.Context) {
	var item model.OpenItem
	if err := c.ShouldBindJSON(&item); err != nil {
		badRequest(c, err)
		return
	}
	created, err := a.bankrec.CreateOpenItem(c.Request.Context(), item)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (a Api) GetOpenItem(c *gin.Context) {
	item, err := a.bankrec.GetOpenItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (a Api) CreateStatementLine(c *gin.Context) {
	var line model.StatementLine
	if err := c.ShouldBindJSON(&line); err != nil {
		badRequest(c, err)
		return
	}
	created, err := a.bankrec.CreateStatementLine(c.Request.Context(), line)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (a Api) GetStatementLine(c *gin.Context) {
	line, err := a.bankrec.GetStatementLine(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, line)
}

// ImportStatementLines takes a multipart upload: the statement file under "file" and the target journal
// as form fields.
func (a Api) ImportStatementLines(c *gin.Context) {
	var imp bankrec.StatementImport
	if err := c.ShouldBind(&imp); err != nil {
		badRequest(c, err)
		return
	}
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File upload failed"})
		return
	}
	defer file.Close()

	result, err := a.bankrec.ImportStatementLines(c.Request.Context(), imp, file, header.Filename)
	if err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ResolvePartner finds and stores the partner of a statement line. A line with no identifiable
// partner is answered with a null partner.
func (a Api) ResolvePartner(c *gin.Context) {
	partner, err := a.bankrec.ResolveStatementLinePartner(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"partner": partner})
}
